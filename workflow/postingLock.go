package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireShopPostingLock serializes stock posting per shop across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that will do the posting transaction.
func AcquireShopPostingLock(tx *gorm.DB, shop string) error {
	lockName := fmt.Sprintf("posting:%s", shop)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for shop=%s", shop)
	}
	return nil
}

func ReleaseShopPostingLock(tx *gorm.DB, shop string) {
	lockName := fmt.Sprintf("posting:%s", shop)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
