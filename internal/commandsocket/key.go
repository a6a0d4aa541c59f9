package commandsocket

import (
	"context"
	"net/http"

	"github.com/opendnssec/opendnssec-sub014/internal/errs"
	"github.com/opendnssec/opendnssec-sub014/internal/keymodel"
	"github.com/opendnssec/opendnssec-sub014/internal/keystore"
)

// keyPost covers every "key ..." subcommand of spec.md §6.3: generate,
// list, export, import, ds-submit, ds-seen, ds-retract, ds-gone,
// rollover, purge. Not every field applies to every subcommand.
type keyPost struct {
	Command string `json:"command"`
	Zone    string `json:"zone"`
	Locator string `json:"locator"`
	Role    string `json:"role"`
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req keyPost
	reqID := decode(r, &req)

	switch req.Command {
	case "generate":
		err := s.generateKey(req)
		writeResponse(w, reqID, nil, err)
	case "list":
		data, err := s.listKeys(req.Zone)
		writeResponse(w, reqID, data, err)
	case "export":
		data, err := s.exportKey(req.Locator)
		writeResponse(w, reqID, data, err)
	case "import":
		// Importing key material from outside the keystore is out of
		// scope for the soft keystore this daemon ships with (spec.md
		// §6.1 only names generate/sign/remove as mutating operations);
		// an HSM-backed keystore would wire a real importer here.
		writeResponse(w, reqID, nil, errs.New(errs.CONFIG, "commandsocket.key.import", unknownSubcommand("import: not supported by this keystore backend")))
	case "ds-submit":
		err := s.Enforcer.MarkDSSubmitted(req.Zone, req.Locator)
		writeResponse(w, reqID, nil, err)
	case "ds-seen":
		err := s.Enforcer.MarkDSSeen(req.Zone, req.Locator)
		writeResponse(w, reqID, nil, err)
	case "ds-retract":
		err := s.Enforcer.MarkDSRetract(req.Zone, req.Locator)
		writeResponse(w, reqID, nil, err)
	case "ds-gone":
		err := s.Enforcer.MarkDSGone(req.Zone, req.Locator)
		writeResponse(w, reqID, nil, err)
	case "rollover":
		err := s.rollover(req)
		writeResponse(w, reqID, nil, err)
	case "purge":
		err := s.Enforcer.PurgeKey(req.Zone, req.Locator)
		writeResponse(w, reqID, nil, err)
	default:
		writeResponse(w, reqID, nil, errs.New(errs.CONFIG, "commandsocket.key", unknownSubcommand(req.Command)))
	}
}

func (s *Server) generateKey(req keyPost) error {
	role, err := keymodel.ParseKeyRole(req.Role)
	if err != nil {
		return errs.New(errs.CONFIG, "commandsocket.key.generate", err)
	}
	return s.Enforcer.GenerateKeyNow(req.Zone, role)
}

func (s *Server) rollover(req keyPost) error {
	role, err := keymodel.ParseKeyRole(req.Role)
	if err != nil {
		return errs.New(errs.CONFIG, "commandsocket.key.rollover", err)
	}
	return s.Enforcer.RequestRollover(req.Zone, role)
}

func (s *Server) listKeys(zone string) ([]*keymodel.Key, error) {
	tx, err := s.Store.Begin(context.Background())
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	recs, err := tx.ListKeys(zone)
	if err != nil {
		return nil, err
	}
	out := make([]*keymodel.Key, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Entity)
	}
	return out, nil
}

// exportKeyResult is a key's public material in presentation form, spec.md
// §6.3 "key export" — built the same way internal/enforcer/keygen.go
// derives a keytag, via keystore.PublicKeyString over the handle's public
// key.
type exportKeyResult struct {
	Locator     string `json:"locator"`
	PublicKey   string `json:"public_key"`
}

func (s *Server) exportKey(locator string) (*exportKeyResult, error) {
	handle, err := s.Keystore.FindByLocator(locator)
	if err != nil {
		return nil, err
	}
	pke, ok := handle.(keystore.PublicKeyer)
	if !ok {
		return nil, errs.New(errs.BACKEND, "commandsocket.key.export", unknownSubcommand("handle does not expose a public key"))
	}
	pubStr, err := keystore.PublicKeyString(pke.PublicKey())
	if err != nil {
		return nil, errs.New(errs.BACKEND, "commandsocket.key.export", err)
	}
	return &exportKeyResult{Locator: locator, PublicKey: pubStr}, nil
}
