package workflow

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/AngeKano/repfi/ledger"
	"github.com/AngeKano/repfi/models"
)

const backupTimestampLayout = "20060102_150405"

// StoragePrefix is <clientId>/declaration/<year>/periode-<start>-<end>/.
func StoragePrefix(clientId string, p ledger.Period) string {
	return fmt.Sprintf("%s/declaration/%d/%s/", clientId, p.Year(), p.Folder())
}

// StorageFileName is <YYYYMMDD(end)>_<CATEGORY>_<ClientName>.<ext>, ext taken from the uploaded name.
func StorageFileName(p ledger.Period, fileType models.FileType, clientName, originalName string) string {
	return fmt.Sprintf("%s_%s_%s.%s", ledger.FormatCompact(p.End), fileType, clientName, fileExtension(originalName))
}

func fileExtension(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return "xlsx"
	}
	return strings.ToLower(ext)
}

// isBackupCandidate skips earlier backups and pipeline success markers.
func isBackupCandidate(key string) bool {
	return !strings.Contains(key, "backup/") && !strings.Contains(key, "success/")
}

func backupKey(prefix, key string, at time.Time) string {
	return fmt.Sprintf("%sbackup/%s/%s", prefix, at.Format(backupTimestampLayout), path.Base(key))
}
