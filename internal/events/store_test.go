package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvent(typ Type, ip string, at time.Time) *Event {
	return &Event{
		OccurredAt: at,
		Service:    "auth",
		Type:       typ,
		SourceIP:   ip,
		Path:       "/login",
		Metadata:   map[string]interface{}{"email": gofakeit.Email()},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr string
	}{
		{name: "valid", mutate: func(*Event) {}},
		{name: "missing ts", mutate: func(e *Event) { e.OccurredAt = time.Time{} }, wantErr: "ts: required"},
		{name: "missing service", mutate: func(e *Event) { e.Service = "" }, wantErr: "service: required"},
		{name: "blank type", mutate: func(e *Event) { e.Type = "  " }, wantErr: "event: required"},
		{name: "missing ip", mutate: func(e *Event) { e.SourceIP = "" }, wantErr: "ip: required"},
		{name: "missing path", mutate: func(e *Event) { e.Path = "" }, wantErr: "path: required"},
		{name: "long path", mutate: func(e *Event) { e.Path = "/" + strings.Repeat("a", 256) }, wantErr: "path: max"},
		{name: "long service", mutate: func(e *Event) { e.Service = strings.Repeat("s", 65) }, wantErr: "service: max"},
		{name: "negative version", mutate: func(e *Event) { e.Version = -1 }, wantErr: "v: gte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEvent(TypeLoginFailed, "1.2.3.4", t0)
			tt.mutate(e)
			err := Normalize(e)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, SchemaVersion, e.Version)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizeDefaultsMetadataAndUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	e := &Event{OccurredAt: t0.In(loc), Service: "api", Type: TypeMissingToken, SourceIP: "5.6.7.8", Path: "/me"}
	require.NoError(t, Normalize(e))
	assert.NotNil(t, e.Metadata)
	assert.Equal(t, time.UTC, e.OccurredAt.Location())
	assert.True(t, e.OccurredAt.Equal(t0))
}

func TestMemoryStoreAppendRejectsInvalid(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Append(context.Background(), &Event{Service: "auth"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	evts, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestMemoryStoreWindowQueries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ip := gofakeit.IPv4Address()

	var lastID int64
	for _, off := range []time.Duration{0, 30 * time.Second, 60 * time.Second, 120 * time.Second} {
		id, err := s.Append(ctx, newEvent(TypeLoginFailed, ip, t0.Add(off)))
		require.NoError(t, err)
		assert.Greater(t, id, lastID)
		lastID = id
	}
	_, err := s.Append(ctx, newEvent(TypeLoginSuccess, ip, t0.Add(10*time.Second)))
	require.NoError(t, err)
	_, err = s.Append(ctx, newEvent(TypeLoginFailed, "9.9.9.9", t0.Add(10*time.Second)))
	require.NoError(t, err)

	types := []Type{TypeLoginFailed}

	n, err := s.CountInWindow(ctx, types, ip, t0, t0.Add(120*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 4, n, "both bounds are inclusive")

	n, err = s.CountInWindow(ctx, types, ip, t0.Add(time.Nanosecond), t0.Add(120*time.Second-time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountInWindow(ctx, []Type{TypeLoginFailed, TypeLoginSuccess}, ip, t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	first, last, err := s.BoundsInWindow(ctx, types, ip, t0, t0.Add(90*time.Second))
	require.NoError(t, err)
	assert.True(t, first.Equal(t0))
	assert.True(t, last.Equal(t0.Add(60*time.Second)))

	_, _, err = s.BoundsInWindow(ctx, types, "0.0.0.0", t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreIdenticalTimestampsAllCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, newEvent(TypeInvalidToken, "1.1.1.1", t0))
		require.NoError(t, err)
	}
	n, err := s.CountInWindow(ctx, []Type{TypeInvalidToken}, "1.1.1.1", t0, t0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, newEvent(TypeLoginFailed, "1.2.3.4", t0.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	_, err := s.Append(ctx, newEvent(TypeMissingToken, "5.6.7.8", t0))
	require.NoError(t, err)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.True(t, all[0].OccurredAt.Equal(t0.Add(4*time.Second)), "newest first")

	byIP, err := s.List(ctx, Filter{SourceIP: "5.6.7.8"})
	require.NoError(t, err)
	require.Len(t, byIP, 1)
	assert.Equal(t, TypeMissingToken, byIP[0].Type)

	limited, err := s.List(ctx, Filter{Type: TypeLoginFailed, Since: t0.Add(time.Second), Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	limited[0].Metadata["email"] = "mutated"
	again, err := s.List(ctx, Filter{Type: TypeLoginFailed, Limit: 1})
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again[0].Metadata["email"])
}

func TestTypeKnown(t *testing.T) {
	assert.True(t, TypeLoginFailed.Known())
	assert.True(t, TypeInvalidTokenClaims.Known())
	assert.False(t, Type("port_scan").Known())
}
