package models

import (
	"errors"
	"testing"

	"gorm.io/gorm"
)

func TestNoMatchYetClassification(t *testing.T) {
	if !noMatchYet(gorm.ErrRecordNotFound) {
		t.Fatal("an absent row means the engine has not run")
	}
	if noMatchYet(errors.New("driver: bad connection")) {
		t.Fatal("a query failure must propagate, not read as absence")
	}
	if noMatchYet(nil) {
		t.Fatal("nil is not absence")
	}
}
