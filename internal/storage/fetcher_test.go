package storage_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/storage"
)

type stubLister struct {
	listFn func(ctx context.Context, kind campus.Kind) ([]*campus.POI, error)
}

func (s *stubLister) List(ctx context.Context, kind campus.Kind) ([]*campus.POI, error) {
	return s.listFn(ctx, kind)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetcher_Fetch(t *testing.T) {
	f := storage.NewFetcher(&stubLister{listFn: func(_ context.Context, kind campus.Kind) ([]*campus.POI, error) {
		assert.Equal(t, campus.KindRoom, kind)
		return []*campus.POI{campus.NewRoom(campus.Attributes{ID: "r1"}, campus.RoomInfo{})}, nil
	}}, discardLogger())

	pois, err := f.Fetch(context.Background(), campus.KindRoom)
	require.NoError(t, err)
	require.Len(t, pois, 1)
}

func TestFetcher_FetchErrorIsNetwork(t *testing.T) {
	f := storage.NewFetcher(&stubLister{listFn: func(_ context.Context, _ campus.Kind) ([]*campus.POI, error) {
		return nil, fmt.Errorf("db down")
	}}, discardLogger())

	_, err := f.Fetch(context.Background(), campus.KindBuilding)
	require.Error(t, err)
	assert.ErrorIs(t, err, campus.ErrNetwork)
	assert.Contains(t, err.Error(), "db down")
}

func TestFetcher_FetchAll_PartialFailure(t *testing.T) {
	f := storage.NewFetcher(&stubLister{listFn: func(_ context.Context, kind campus.Kind) ([]*campus.POI, error) {
		if kind == campus.KindRoom {
			return nil, fmt.Errorf("rooms table locked")
		}
		return []*campus.POI{{Kind: kind, Attributes: campus.Attributes{ID: kind.String()}}}, nil
	}}, discardLogger())

	all, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, campus.KindBuilding)
	assert.Contains(t, all, campus.KindFacility)
	assert.NotContains(t, all, campus.KindRoom)
}

func TestFetcher_FetchAll_Panic(t *testing.T) {
	f := storage.NewFetcher(&stubLister{listFn: func(_ context.Context, kind campus.Kind) ([]*campus.POI, error) {
		if kind == campus.KindFacility {
			panic("boom")
		}
		return nil, nil
	}}, discardLogger())

	_, err := f.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}
