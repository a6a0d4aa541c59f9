package commandsocket

import (
	"context"
	"net/http"

	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
)

// zonePost mirrors tdns's CommandPost shape (Command plus a flat bag of
// arguments) for the "zone list|add|delete" commands, spec.md §6.3.
type zonePost struct {
	Command       string `json:"command"`
	Name          string `json:"name"`
	PolicyID      string `json:"policy_id"`
	InputAdapter  string `json:"input_adapter"`
	OutputAdapter string `json:"output_adapter"`
	SignconfPath  string `json:"signconf_path"`
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	var req zonePost
	reqID := decode(r, &req)

	switch req.Command {
	case "list":
		data, err := s.listZones()
		writeResponse(w, reqID, data, err)
	case "add":
		err := s.addZone(req)
		writeResponse(w, reqID, nil, err)
	case "delete":
		err := s.deleteZone(req.Name)
		writeResponse(w, reqID, nil, err)
	default:
		writeResponse(w, reqID, nil, errs.New(errs.CONFIG, "commandsocket.zone", unknownSubcommand(req.Command)))
	}
}

func (s *Server) listZones() ([]*keymodel.Zone, error) {
	tx, err := s.Store.Begin(context.Background())
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	recs, err := tx.ListZones()
	if err != nil {
		return nil, err
	}
	out := make([]*keymodel.Zone, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Entity)
	}
	return out, nil
}

func (s *Server) addZone(req zonePost) error {
	z := &keymodel.Zone{
		Name:          req.Name,
		PolicyID:      req.PolicyID,
		InputAdapter:  req.InputAdapter,
		OutputAdapter: req.OutputAdapter,
		SignconfPath:  req.SignconfPath,
	}

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

	if _, err := tx.InsertZone(z); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	if err := s.Enforcer.RegisterZone(z.Name); err != nil {
		return err
	}
	if s.Signer != nil {
		if err := s.Signer.RegisterZone(z.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) deleteZone(name string) error {
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
	if err := tx.DeleteZone(name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
