package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildledger/procure_backend/utils"
	"github.com/buildledger/procure_backend/workflow"
	"github.com/gin-gonic/gin"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", utils.NewValidationError("amount", "must be positive"), http.StatusUnprocessableEntity},
		{"vendor mismatch", &utils.VendorMismatchError{VendorId: 1, PoVendorId: 2}, http.StatusUnprocessableEntity},
		{"invalid state", &utils.InvalidStateError{Entity: "import run", Current: "approved", Expected: "review"}, http.StatusConflict},
		{"not found", &utils.NotFoundError{Resource: "invoice"}, http.StatusNotFound},
		{"concurrent replay", workflow.ErrIdempotencyInProgress, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tc.err)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}
