package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// maxBodySize limits control and faucet request bodies.
const maxBodySize = 1 << 20

// Checkpoint is the control plane's checkpoint shape.
type Checkpoint struct {
	Summary   engine.CheckpointSummary  `json:"summary"`
	Authority engine.AuthoritySignature `json:"authority"`
}

// AdvanceClockRequest is the POST /advance_clock body. Duration is in
// milliseconds.
type AdvanceClockRequest struct {
	Duration *int64 `json:"duration"`
}

type controlAPI struct {
	handle *bridge.Handle
}

// NewControlRouter builds the control plane:
//
//	GET  /                       health
//	GET  /checkpoint             latest checkpoint
//	GET  /checkpoint/{sequence}  checkpoint by sequence number
//	POST /create_checkpoint
//	POST /advance_clock          {"duration": ms}
//	POST /advance_epoch
func NewControlRouter(h *bridge.Handle) http.Handler {
	c := &controlAPI{handle: h}

	r := chi.NewRouter()
	r.Use(RequestID, middleware.Recoverer, accessLog("control"))

	r.Get("/", health)
	r.Route("/checkpoint", func(r chi.Router) {
		r.Get("/", c.latestCheckpoint)
		r.Get("/{sequence}", c.checkpointBySequence)
	})
	r.Post("/create_checkpoint", c.createCheckpoint)
	r.Post("/advance_clock", c.advanceClock)
	r.Post("/advance_epoch", c.advanceEpoch)
	return r
}

func (c *controlAPI) writeCheckpoint(w http.ResponseWriter, status int, method string, args any) {
	cp, err := callJSON[engine.VerifiedCheckpoint](c.handle, method, args)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, status, Checkpoint{Summary: cp.Data, Authority: cp.AuthSignature})
}

func (c *controlAPI) latestCheckpoint(w http.ResponseWriter, r *http.Request) {
	c.writeCheckpoint(w, http.StatusOK, bridge.MethodGetLatestCheckpoint, nil)
}

func (c *controlAPI) checkpointBySequence(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(chi.URLParam(r, "sequence"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sequence number")
		return
	}
	c.writeCheckpoint(w, http.StatusOK, bridge.MethodGetCheckpointBySequenceNumber,
		map[string]uint64{"sequence_number": seq})
}

func (c *controlAPI) createCheckpoint(w http.ResponseWriter, r *http.Request) {
	c.writeCheckpoint(w, http.StatusOK, bridge.MethodCreateCheckpoint, nil)
}

func (c *controlAPI) advanceClock(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var req AdvanceClockRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Duration == nil {
		writeError(w, http.StatusBadRequest, "expected {\"duration\": <milliseconds>}")
		return
	}

	out, err := callJSON[map[string]uint64](c.handle, bridge.MethodAdvanceClock, req)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *controlAPI) advanceEpoch(w http.ResponseWriter, r *http.Request) {
	out, err := callJSON[map[string]uint64](c.handle, bridge.MethodAdvanceEpoch, nil)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}
