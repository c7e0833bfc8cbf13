package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquirePostingLock serializes posting per aggregate across instances using
// MySQL advisory locks. Keys are posting:po:<id>, posting:invoice:<id>,
// posting:import:<id>.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquirePostingLock(tx *gorm.DB, aggregate string, id int) error {
	lockName := fmt.Sprintf("posting:%s:%d", aggregate, id)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for %s", lockName)
	}
	return nil
}

func ReleasePostingLock(tx *gorm.DB, aggregate string, id int) {
	lockName := fmt.Sprintf("posting:%s:%d", aggregate, id)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
