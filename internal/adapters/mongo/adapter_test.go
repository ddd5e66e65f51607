package mongo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	mongodrv "go.mongodb.org/mongo-driver/mongo"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

func TestMapError(t *testing.T) {
	dup := mongodrv.WriteException{WriteErrors: []mongodrv.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	other := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no documents", mongodrv.ErrNoDocuments, domain.ErrNotFound},
		{"duplicate key", dup, domain.ErrConflict},
		{"other", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "thing")
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestRequireMatched(t *testing.T) {
	assert.ErrorIs(t, requireMatched(&mongodrv.UpdateResult{}, "user x"), domain.ErrNotFound)
	assert.NoError(t, requireMatched(&mongodrv.UpdateResult{MatchedCount: 1}, "user x"))
}
