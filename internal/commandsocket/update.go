package commandsocket

import (
	"log"
	"net/http"

	"github.com/opendnssec/opendnssec-sub014/internal/config"
	"github.com/opendnssec/opendnssec-sub014/internal/errs"
)

// updatePost covers "update conf|kasp|zonelist|all", spec.md §6.3.
// conf and all load and validate a configuration file (cfg_file, or
// config.DefaultCfgFile when empty) and log its path; the running
// components are not rebuilt and keep the settings they started with.
// kasp/zonelist only acknowledge: policies and zones are changed through
// the "policy import"/"zone add" commands, and neither the daemon nor
// the CLI reads a KASP/zonelist file.
type updatePost struct {
	Command  string `json:"command"`
	CfgFile  string `json:"cfg_file"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updatePost
	reqID := decode(r, &req)

	switch req.Command {
	case "conf":
		err := s.reloadConf(req.CfgFile)
		writeResponse(w, reqID, nil, err)
	case "kasp", "zonelist":
		// Policies and zones are re-imported entry-by-entry via
		// "policy import" / "zone add"; this command only acknowledges
		// that the daemon is ready to receive them (spec.md §6.3).
		writeResponse(w, reqID, nil, nil)
	case "all":
		err := s.reloadConf(req.CfgFile)
		writeResponse(w, reqID, nil, err)
	default:
		writeResponse(w, reqID, nil, errs.New(errs.CONFIG, "commandsocket.update", unknownSubcommand(req.Command)))
	}
}

func (s *Server) reloadConf(cfgFile string) error {
	conf, err := config.Load(cfgFile)
	if err != nil {
		return errs.New(errs.CONFIG, "commandsocket.update.conf", err)
	}
	log.Printf("commandsocket: reloaded configuration from %q", conf.Internal.CfgFile)
	return nil
}
