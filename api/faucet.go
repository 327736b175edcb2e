package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
	"github.com/VanDung-dev/HieraChain-Simulator/engine"
)

// msgInputError is returned for any request that is not a FixedAmountRequest.
const msgInputError = "Input Error."

// FaucetRequest is the tagged faucet request. Only FixedAmountRequest is
// served.
type FaucetRequest struct {
	FixedAmountRequest *FixedAmountRequest `json:"FixedAmountRequest,omitempty"`
}

// FixedAmountRequest pays the configured faucet amount to Recipient.
type FixedAmountRequest struct {
	Recipient *engine.Address `json:"recipient"`
}

// FaucetResponse is returned for every faucet request.
type FaucetResponse struct {
	TransferredGasObjects []bridge.GasCoin `json:"transferred_gas_objects"`
	Error                 *string          `json:"error"`
}

func faucetError(msg string) FaucetResponse {
	return FaucetResponse{TransferredGasObjects: []bridge.GasCoin{}, Error: &msg}
}

type faucetAPI struct {
	handle *bridge.Handle
}

// NewFaucetRouter builds the faucet:
//
//	GET  /     health
//	POST /gas  {"FixedAmountRequest": {"recipient": "0x..."}}
func NewFaucetRouter(h *bridge.Handle) http.Handler {
	f := &faucetAPI{handle: h}

	r := chi.NewRouter()
	r.Use(RequestID, middleware.Recoverer, accessLog("faucet"))

	r.Get("/", health)
	r.Post("/gas", f.requestGas)
	return r
}

func (f *faucetAPI) requestGas(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, faucetError(msgInputError))
		return
	}

	var req FaucetRequest
	if err := json.Unmarshal(body, &req); err != nil ||
		req.FixedAmountRequest == nil || req.FixedAmountRequest.Recipient == nil {
		writeJSON(w, http.StatusBadRequest, faucetError(msgInputError))
		return
	}
	recipient := *req.FixedAmountRequest.Recipient

	receipt, err := callJSON[bridge.GasReceipt](f.handle, bridge.MethodRequestGas,
		map[string]engine.Address{"recipient": recipient})
	if err != nil {
		Logger().Warn("failed to request gas",
			zap.Stringer("recipient", recipient),
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err))
		writeJSON(w, statusForError(err), faucetError(err.Error()))
		return
	}

	Logger().Info("gas request served",
		zap.Stringer("recipient", recipient),
		zap.Uint64("checkpoint", receipt.Checkpoint))
	writeJSON(w, http.StatusCreated, FaucetResponse{
		TransferredGasObjects: receipt.TransferredGasObjects,
	})
}
