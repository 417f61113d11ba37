package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/use-agent/pricehound/models"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeInternal, http.StatusInternalServerError},
		{models.ErrCodeBrowserCrash, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := models.NewScrapeError(tt.code, "x", errors.New("cause"))
			if got := mapErrorToStatus(err); got != tt.want {
				t.Errorf("mapErrorToStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
