package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireClientPeriodLock serializes period transitions per client across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the transaction that does the transition.
func AcquireClientPeriodLock(tx *gorm.DB, clientId string) error {
	lockName := fmt.Sprintf("comptable-period:%s", clientId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire period lock for client_id=%s", clientId)
	}
	return nil
}

func ReleaseClientPeriodLock(tx *gorm.DB, clientId string) {
	lockName := fmt.Sprintf("comptable-period:%s", clientId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

func supportsAdvisoryLocks(tx *gorm.DB) bool {
	return tx.Dialector != nil && tx.Dialector.Name() == "mysql"
}
