package storage

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("append", "events", nil))

	err := Wrap("append", "events", sql.ErrConnDone)
	assert.True(t, IsStorage(err))
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.Equal(t, "storage.append(events): "+sql.ErrConnDone.Error(), err.Error())

	var se *Error
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "append", se.Op)
}

func TestErrorWithoutTable(t *testing.T) {
	err := Wrap("ping", "", errors.New("refused"))
	assert.Equal(t, "storage.ping: refused", err.Error())
}

func TestIsStorageFalseForOtherErrors(t *testing.T) {
	assert.False(t, IsStorage(errors.New("boom")))
	assert.False(t, IsStorage(nil))
}
