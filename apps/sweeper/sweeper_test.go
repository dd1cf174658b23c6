package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivedesk/messaging/pkg/model"
)

type fakeLister struct {
	stale  []model.Presence
	cutoff time.Time
	err    error
}

func (f *fakeLister) StaleOnline(_ context.Context, cutoff time.Time) ([]model.Presence, error) {
	f.cutoff = cutoff
	return f.stale, f.err
}

type fakeSetter struct {
	flipped []uuid.UUID
	failFor map[uuid.UUID]bool
}

func (f *fakeSetter) Set(_ context.Context, userID uuid.UUID, online bool) error {
	if online {
		return errors.New("sweeper must only flip offline")
	}
	if f.failFor[userID] {
		return errors.New("store unavailable")
	}
	f.flipped = append(f.flipped, userID)
	return nil
}

func TestSweepFlipsStaleUsersOffline(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	lister := &fakeLister{stale: []model.Presence{
		{UserID: a, IsOnline: true},
		{UserID: b, IsOnline: true},
	}}
	setter := &fakeSetter{}

	s := NewSweeper(lister, setter, 2*time.Minute, time.Second, zerolog.Nop())
	n, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, setter.flipped)
}

func TestSweepCutoffRespectsTimeout(t *testing.T) {
	lister := &fakeLister{}
	s := NewSweeper(lister, &fakeSetter{}, 2*time.Minute, time.Second, zerolog.Nop())

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().UTC().Add(-2*time.Minute), lister.cutoff, 2*time.Second)
}

func TestSweepContinuesPastIndividualFailures(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	lister := &fakeLister{stale: []model.Presence{
		{UserID: a, IsOnline: true},
		{UserID: b, IsOnline: true},
	}}
	setter := &fakeSetter{failFor: map[uuid.UUID]bool{a: true}}

	s := NewSweeper(lister, setter, time.Minute, time.Second, zerolog.Nop())
	n, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{b}, setter.flipped)
}

func TestSweepNothingStale(t *testing.T) {
	setter := &fakeSetter{}
	s := NewSweeper(&fakeLister{}, setter, time.Minute, time.Second, zerolog.Nop())

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, setter.flipped)
}
