package recording

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/pkg/queue"
)

func TestProcessSkipsCompleted(t *testing.T) {
	env := newTestEnv(models.SessionCompleted)
	ctx := context.Background()
	rec := &models.Recording{
		SessionID: env.sess.ID,
		Status:    models.RecordingStatusCompleted,
		S3Key:     "recordings/done.mp4",
	}
	if err := env.recordings.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// Redelivery of an already-processed job is harmless.
	err := env.processor.Process(ctx, queue.RecordingProcessPayload{
		SessionID:      env.sess.ID,
		RecordingID:    rec.ID,
		Provider:       string(models.ProviderSelfHosted),
		ExternalRoomID: "room-1",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if env.provider.listCalls != 0 {
		t.Error("completed recording must not hit the provider")
	}
}

func TestProcessDropsMissingRow(t *testing.T) {
	env := newTestEnv(models.SessionCompleted)
	err := env.processor.Process(context.Background(), queue.RecordingProcessPayload{
		SessionID:      env.sess.ID,
		RecordingID:    uuid.New(),
		Provider:       string(models.ProviderSelfHosted),
		ExternalRoomID: "room-1",
	})
	if err != nil {
		t.Fatalf("Process of a deleted recording should drop the job, got %v", err)
	}
	if env.provider.listCalls != 0 {
		t.Error("dropped job must not hit the provider")
	}
}

func TestProcessUnknownProviderKeepsRow(t *testing.T) {
	env := newTestEnv(models.SessionCompleted)
	ctx := context.Background()
	rec := &models.Recording{
		SessionID: env.sess.ID,
		Status:    models.RecordingStatusProcessing,
	}
	if err := env.recordings.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	err := env.processor.Process(ctx, queue.RecordingProcessPayload{
		SessionID:      env.sess.ID,
		RecordingID:    rec.ID,
		Provider:       string(models.ProviderManaged),
		ExternalRoomID: "room-1",
	})
	if err == nil {
		t.Fatal("expected resolve error for unregistered provider")
	}
	// The row stays processing so a capable worker can still pick it up.
	stored, _ := env.recordings.GetByID(ctx, rec.ID)
	if stored.Status != models.RecordingStatusProcessing {
		t.Errorf("status = %s, want processing", stored.Status)
	}
}

func TestReconcileRequeuesStale(t *testing.T) {
	env := newTestEnv(models.SessionCompleted)
	ctx := context.Background()
	env.recordings.stale = []models.Recording{
		{ID: uuid.New(), SessionID: env.sess.ID, Status: models.RecordingStatusProcessing},
	}

	if err := env.processor.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(env.enqueuer.payloads) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(env.enqueuer.payloads))
	}
	job := env.enqueuer.payloads[0]
	if job.RecordingID != env.recordings.stale[0].ID {
		t.Errorf("requeued recording = %s", job.RecordingID)
	}
	if job.Provider != string(models.ProviderSelfHosted) || job.ExternalRoomID != "room-1" {
		t.Errorf("job routing = %+v", job)
	}
}
