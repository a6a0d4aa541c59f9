package commandsocket

import (
	"context"
	"net/http"

	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
)

// policyPost mirrors zonePost's shape for "policy list|import|purge",
// spec.md §6.3. Import takes the full policy inline rather than a file
// path — the operator CLI (cmd/enforcer-cli) is responsible for reading
// a policy file and marshaling it into this field.
type policyPost struct {
	Command string           `json:"command"`
	ID      string           `json:"id"`
	Policy  *keymodel.Policy `json:"policy,omitempty"`
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyPost
	reqID := decode(r, &req)

	switch req.Command {
	case "list":
		data, err := s.listPolicies()
		writeResponse(w, reqID, data, err)
	case "import":
		err := s.importPolicy(req.Policy)
		writeResponse(w, reqID, nil, err)
	case "purge":
		err := s.purgePolicy(req.ID)
		writeResponse(w, reqID, nil, err)
	default:
		writeResponse(w, reqID, nil, errs.New(errs.CONFIG, "commandsocket.policy", unknownSubcommand(req.Command)))
	}
}

func (s *Server) listPolicies() ([]*keymodel.Policy, error) {
	tx, err := s.Store.Begin(context.Background())
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	recs, err := tx.ListPolicies()
	if err != nil {
		return nil, err
	}
	out := make([]*keymodel.Policy, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Entity)
	}
	return out, nil
}

func (s *Server) importPolicy(p *keymodel.Policy) error {
	if p == nil {
		return errs.New(errs.CONFIG, "commandsocket.importPolicy", unknownSubcommand("(nil policy)"))
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

	existing, err := tx.GetPolicy(p.ID)
	switch {
	case err == nil:
		existing.Entity = p
		if err := tx.UpdatePolicy(existing); err != nil {
			return err
		}
	case errs.KindOf(err) == errs.NOT_FOUND:
		if _, err := tx.InsertPolicy(p); err != nil {
			return err
		}
	default:
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Server) purgePolicy(id string) error {
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
	if err := tx.DeletePolicy(id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
