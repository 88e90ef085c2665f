package saga

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/storymint/mint-pipeline/internal/chain"
	"github.com/storymint/mint-pipeline/internal/domain"
)

// fakeMintStore keeps intents and the story projection in memory.
type fakeMintStore struct {
	intents     map[string]*domain.MintIntent
	stories     map[string]*domain.Story
	storyWrites int
}

func newFakeMintStore() *fakeMintStore {
	return &fakeMintStore{
		intents: make(map[string]*domain.MintIntent),
		stories: make(map[string]*domain.Story),
	}
}

func (f *fakeMintStore) EnsureMintIntent(ctx context.Context, storyID, authorWallet string) (*domain.MintIntent, error) {
	id := domain.MintIntentID(storyID)
	intent, ok := f.intents[id]
	if !ok {
		intent = &domain.MintIntent{
			IntentID: id, StoryID: storyID, AuthorWallet: authorWallet,
			Status: domain.IntentPending, CreatedAt: time.Now(),
		}
		f.intents[id] = intent
	}
	copy := *intent
	return &copy, nil
}

func (f *fakeMintStore) MarkIntentSubmitted(ctx context.Context, intentID, txHash string) error {
	intent := f.intents[intentID]
	if intent.Status == domain.IntentPending {
		intent.TxHash = &txHash
		intent.Status = domain.IntentSubmitted
	}
	return nil
}

func (f *fakeMintStore) MarkIntentConfirmed(ctx context.Context, intentID, tokenID string) error {
	intent := f.intents[intentID]
	if intent.Status == domain.IntentSubmitted {
		intent.TokenID = &tokenID
		intent.Status = domain.IntentConfirmed
	}
	return nil
}

func (f *fakeMintStore) MarkIntentFailed(ctx context.Context, intentID string) error {
	intent := f.intents[intentID]
	if intent.Status == domain.IntentSubmitted {
		intent.Status = domain.IntentFailed
	}
	return nil
}

func (f *fakeMintStore) MarkStoryMinted(ctx context.Context, storyID, tokenID, txHash string) error {
	story, ok := f.stories[storyID]
	if !ok {
		story = &domain.Story{ID: storyID, Status: "published"}
		f.stories[storyID] = story
	}
	if story.Status == domain.StoryMinted {
		return nil
	}
	story.Status = domain.StoryMinted
	story.NFTTokenID = &tokenID
	story.NFTTxHash = &txHash
	f.storyWrites++
	return nil
}

// fakeChain scripts the chain client's answers.
type fakeChain struct {
	submits   int
	submitErr error
	status    chain.TxStatus
	statusErr error
}

func (f *fakeChain) SubmitMint(ctx context.Context, wallet, metadataURI string) (string, error) {
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "0xhash1", nil
}

func (f *fakeChain) CheckTxStatus(ctx context.Context, txHash string) (*chain.TxStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	status := f.status
	return &status, nil
}

func setupSaga(t *testing.T) (*MintSaga, *fakeMintStore, *fakeChain) {
	t.Helper()
	store := newFakeMintStore()
	chainClient := &fakeChain{status: chain.TxStatus{State: chain.TxConfirmed, TokenID: "42"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMintSaga(store, chainClient, logger), store, chainClient
}

func mintPayload(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(domain.MintRequestedPayload{
		StoryID:      "story1",
		AuthorWallet: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		MetadataURI:  "ipfs://story1",
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestMintSaga_HappyPath(t *testing.T) {
	saga, store, chainClient := setupSaga(t)

	if err := saga.Handle(context.Background(), mintPayload(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if chainClient.submits != 1 {
		t.Errorf("expected 1 submission, got %d", chainClient.submits)
	}
	intent := store.intents[domain.MintIntentID("story1")]
	if intent.Status != domain.IntentConfirmed {
		t.Errorf("expected intent confirmed, got %q", intent.Status)
	}
	if intent.TokenID == nil || *intent.TokenID != "42" {
		t.Error("expected token id 42 on intent")
	}
	story := store.stories["story1"]
	if story == nil || story.Status != domain.StoryMinted {
		t.Error("expected story marked minted")
	}
	if *story.NFTTxHash != "0xhash1" {
		t.Errorf("expected tx hash on story, got %v", story.NFTTxHash)
	}
}

func TestMintSaga_ScenarioC_ProcessedTwice(t *testing.T) {
	saga, store, chainClient := setupSaga(t)
	ctx := context.Background()

	// Same event handled twice, simulating a crash-and-retry.
	if err := saga.Handle(ctx, mintPayload(t)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := saga.Handle(ctx, mintPayload(t)); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if chainClient.submits != 1 {
		t.Errorf("replay must not resubmit: expected 1 submission, got %d", chainClient.submits)
	}
	if len(store.intents) != 1 {
		t.Errorf("expected a single intent row, got %d", len(store.intents))
	}
	if store.storyWrites != 1 {
		t.Errorf("expected the story updated exactly once, got %d writes", store.storyWrites)
	}
}

func TestMintSaga_ResumesFromSubmitted(t *testing.T) {
	saga, store, chainClient := setupSaga(t)
	ctx := context.Background()

	// First run: transaction still pending on-chain. The saga must
	// persist the submission and surface a retryable error.
	chainClient.status = chain.TxStatus{State: chain.TxPending}
	err := saga.Handle(ctx, mintPayload(t))
	if err == nil {
		t.Fatal("expected retryable error while transaction is pending")
	}
	if domain.KindOf(err) != domain.KindTransient {
		t.Errorf("expected transient kind, got %s", domain.KindOf(err))
	}
	intent := store.intents[domain.MintIntentID("story1")]
	if intent.Status != domain.IntentSubmitted {
		t.Fatalf("expected intent submitted, got %q", intent.Status)
	}

	// Retry: confirmation arrives. No second submission.
	chainClient.status = chain.TxStatus{State: chain.TxConfirmed, TokenID: "7"}
	if err := saga.Handle(ctx, mintPayload(t)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if chainClient.submits != 1 {
		t.Errorf("resume from submitted must not resubmit, got %d submissions", chainClient.submits)
	}
	if intent.Status != domain.IntentConfirmed {
		t.Errorf("expected intent confirmed, got %q", intent.Status)
	}
}

func TestMintSaga_RevertedIsFatal(t *testing.T) {
	saga, store, chainClient := setupSaga(t)
	ctx := context.Background()

	chainClient.status = chain.TxStatus{State: chain.TxReverted}
	err := saga.Handle(ctx, mintPayload(t))
	if err == nil {
		t.Fatal("expected fatal error for reverted transaction")
	}
	if domain.KindOf(err) != domain.KindFatal {
		t.Errorf("expected fatal kind, got %s", domain.KindOf(err))
	}

	intent := store.intents[domain.MintIntentID("story1")]
	if intent.Status != domain.IntentFailed {
		t.Errorf("expected intent terminally failed, got %q", intent.Status)
	}

	// A later replay must not resubmit against the failed intent.
	if err := saga.Handle(ctx, mintPayload(t)); domain.KindOf(err) != domain.KindFatal {
		t.Errorf("expected fatal on replay of failed intent, got %v", err)
	}
	if chainClient.submits != 1 {
		t.Errorf("failed intent must not be resubmitted, got %d submissions", chainClient.submits)
	}
}

func TestMintSaga_SubmitErrorLeavesIntentPending(t *testing.T) {
	saga, store, chainClient := setupSaga(t)
	ctx := context.Background()

	submitErr := errors.New("rpc timeout")
	chainClient.submitErr = domain.Transientf(submitErr, "submitting mint transaction")

	err := saga.Handle(ctx, mintPayload(t))
	if err == nil {
		t.Fatal("expected submission error to propagate")
	}
	if !errors.Is(err, submitErr) {
		t.Errorf("expected error to wrap the rpc failure, got %v", err)
	}

	intent := store.intents[domain.MintIntentID("story1")]
	if intent.Status != domain.IntentPending {
		t.Errorf("failed submission must leave intent pending, got %q", intent.Status)
	}

	// Retry succeeds and is allowed to submit again: nothing was
	// broadcast the first time.
	chainClient.submitErr = nil
	if err := saga.Handle(ctx, mintPayload(t)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if chainClient.submits != 2 {
		t.Errorf("expected resubmission after a failed broadcast, got %d", chainClient.submits)
	}
}

func TestMintSaga_BadPayloadIsFatal(t *testing.T) {
	saga, _, _ := setupSaga(t)

	err := saga.Handle(context.Background(), json.RawMessage(`{"story_id": ""}`))
	if err == nil {
		t.Fatal("expected error for empty payload")
	}
	if domain.KindOf(err) != domain.KindFatal {
		t.Errorf("expected fatal kind, got %s", domain.KindOf(err))
	}
}
