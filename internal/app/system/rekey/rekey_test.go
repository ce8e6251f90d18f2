package rekey_test

import (
	"context"
	"testing"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/app/system/rekey"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/bourses/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func codec(t *testing.T, secret string) *cipher.Codec {
	t.Helper()
	c, err := cipher.NewFromSecret(secret)
	require.NoError(t, err)
	return c
}

func household() testutil.Household {
	return testutil.Household{
		GuardianLastName:    "Bernard",
		GuardianFirstNames:  "Anne",
		ApplicantLastName:   "Bernard",
		ApplicantFirstNames: "Jules",
		FiscalNumber:        "1234567890",
	}
}

func TestRun_Rekeys(t *testing.T) {
	oldC, newC := codec(t, "old-secret"), codec(t, "new-secret")
	store := applicationstore.NewMemory()
	inst := primitive.NewObjectID()

	a := testutil.Application(t, oldC, inst, models.StatusPending, household())
	b := testutil.Application(t, oldC, inst, models.StatusDone, household())
	store.Put(a)
	store.Put(b)

	rep, err := rekey.Run(context.Background(), store, oldC, newC, false, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scanned)
	assert.Equal(t, 2, rep.Rekeyed)
	assert.Empty(t, rep.Failures)

	for _, id := range []primitive.ObjectID{a.ID, b.ID} {
		rec, err := store.Get(context.Background(), id)
		require.NoError(t, err)

		doc, err := newC.DecodeRecord(rec)
		require.NoError(t, err)
		assert.Equal(t, household().Document(), doc)

		_, err = oldC.DecodeRecord(rec)
		assert.ErrorIs(t, err, cipher.ErrIntegrity)
	}

	// A second run finds everything already current.
	rep, err = rekey.Run(context.Background(), store, oldC, newC, false, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Current)
	assert.Zero(t, rep.Rekeyed)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	oldC, newC := codec(t, "old-secret"), codec(t, "new-secret")
	store := applicationstore.NewMemory()
	a := testutil.Application(t, oldC, primitive.NewObjectID(), models.StatusPending, household())
	store.Put(a)

	rep, err := rekey.Run(context.Background(), store, oldC, newC, true, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rekeyed)

	rec, err := store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Version, rec.Version)
	_, err = oldC.DecodeRecord(rec)
	assert.NoError(t, err)
}

func TestRun_FailuresDoNotStop(t *testing.T) {
	oldC, newC, otherC := codec(t, "old-secret"), codec(t, "new-secret"), codec(t, "unrelated")
	store := applicationstore.NewMemory()
	inst := primitive.NewObjectID()

	foreign := testutil.Application(t, otherC, inst, models.StatusPending, household())
	good := testutil.Application(t, oldC, inst, models.StatusPending, household())
	store.Put(foreign)
	store.Put(good)

	rep, err := rekey.Run(context.Background(), store, oldC, newC, false, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scanned)
	assert.Equal(t, 1, rep.Rekeyed)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, foreign.ID, rep.Failures[0].ID)
	assert.ErrorIs(t, rep.Failures[0].Err, cipher.ErrIntegrity)
}

func TestRun_Cancelled(t *testing.T) {
	oldC, newC := codec(t, "old-secret"), codec(t, "new-secret")
	store := applicationstore.NewMemory()
	store.Put(testutil.Application(t, oldC, primitive.NewObjectID(), models.StatusPending, household()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rekey.Run(ctx, store, oldC, newC, false, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}
