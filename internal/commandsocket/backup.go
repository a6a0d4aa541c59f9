package commandsocket

import (
	"context"
	"fmt"
	"net/http"

	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/storage"
)

// backupPost covers "backup list|prepare|commit|rollback", spec.md §6.3:
// prepare moves an hsm_key's backup field from required_to_be_backed_up
// to requested, commit from requested to done, and rollback from
// requested back to required_to_be_backed_up. No command moves a key out
// of none.
type backupPost struct {
	Command string `json:"command"`
	Locator string `json:"locator"`
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	var req backupPost
	reqID := decode(r, &req)

	switch req.Command {
	case "list":
		data, err := s.listBackups()
		writeResponse(w, reqID, data, err)
	case "prepare":
		err := s.transitionBackupState(req.Locator, storage.BackupRequiredToBeBackedUp, storage.BackupRequested)
		writeResponse(w, reqID, nil, err)
	case "commit":
		err := s.transitionBackupState(req.Locator, storage.BackupRequested, storage.BackupDone)
		writeResponse(w, reqID, nil, err)
	case "rollback":
		err := s.transitionBackupState(req.Locator, storage.BackupRequested, storage.BackupRequiredToBeBackedUp)
		writeResponse(w, reqID, nil, err)
	default:
		writeResponse(w, reqID, nil, errs.New(errs.CONFIG, "commandsocket.backup", unknownSubcommand(req.Command)))
	}
}

func (s *Server) listBackups() ([]storage.HsmKey, error) {
	tx, err := s.Store.Begin(context.Background())
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	recs, err := tx.ListHsmKeys()
	if err != nil {
		return nil, err
	}
	out := make([]storage.HsmKey, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Entity)
	}
	return out, nil
}

// transitionBackupState moves locator's backup state from "from" to "to",
// mirroring original_source/enforcer-ng/src/hsmkey/backup_hsmkeys_cmd.c's
// gated prepare/commit/rollback transitions: a key not currently in "from"
// is left untouched and reported as a conflict rather than forced into
// "to".
func (s *Server) transitionBackupState(locator string, from, to storage.BackupState) error {
	tx, err := s.Store.Begin(context.Background())
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	recs, err := tx.ListHsmKeys()
	if err != nil {
		return err
	}
	var found *storage.HsmKeyRecord
	for _, rec := range recs {
		if rec.Entity.Locator == locator {
			found = rec
			break
		}
	}
	if found == nil {
		return errs.New(errs.NOT_FOUND, "commandsocket.backup", unknownSubcommand("locator "+locator))
	}
	if found.Entity.Backup != from {
		return errs.New(errs.CONFLICT, "commandsocket.backup",
			fmt.Errorf("key %s: backup state is %s, not %s", locator, found.Entity.Backup, from))
	}
	found.Entity.Backup = to
	if err := tx.UpdateHsmKey(found); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
