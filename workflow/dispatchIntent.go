package workflow

import (
	"errors"
	"time"

	"github.com/AngeKano/repfi/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var ErrDispatchInProgress = errors.New("dispatch in progress")

// A STARTED intent older than this belongs to a request that died mid-dispatch.
const dispatchIntentStaleAfter = 5 * time.Minute

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// BeginDispatchIntent inserts STARTED for batchId. A fresh STARTED row owned by another request
// returns ErrDispatchInProgress; FAILED, SUCCEEDED and stale rows are claimed again.
func BeginDispatchIntent(tx *gorm.DB, batchId, clientId string) error {
	intent := models.DispatchIntent{
		BatchId:  batchId,
		ClientId: clientId,
		Status:   models.DispatchIntentStarted,
		Attempts: 1,
	}
	if err := tx.Create(&intent).Error; err == nil {
		return nil
	} else if !isDuplicateKeyErr(err) {
		return err
	}

	var existing models.DispatchIntent
	if err := tx.Where("batch_id = ?", batchId).First(&existing).Error; err != nil {
		return err
	}
	if existing.Status == models.DispatchIntentStarted && time.Since(existing.UpdatedAt) < dispatchIntentStaleAfter {
		return ErrDispatchInProgress
	}

	// attempts doubles as a version so two re-claimers cannot both win
	res := tx.Model(&models.DispatchIntent{}).
		Where("id = ? AND status = ? AND attempts = ?", existing.ID, existing.Status, existing.Attempts).
		Updates(map[string]interface{}{
			"status":     models.DispatchIntentStarted,
			"attempts":   gorm.Expr("attempts + 1"),
			"dag_run_id": nil,
			"last_error": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDispatchInProgress
	}
	return nil
}

func MarkDispatchSucceeded(tx *gorm.DB, batchId, dagRunId string) error {
	return tx.Model(&models.DispatchIntent{}).
		Where("batch_id = ?", batchId).
		Updates(map[string]interface{}{"status": models.DispatchIntentSucceeded, "dag_run_id": &dagRunId, "last_error": nil}).Error
}

func MarkDispatchFailed(tx *gorm.DB, batchId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.DispatchIntent{}).
		Where("batch_id = ?", batchId).
		Updates(map[string]interface{}{"status": models.DispatchIntentFailed, "last_error": &msg}).Error
}
