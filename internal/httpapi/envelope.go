package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rekcod/rekcod/infrastructure/errors"
	"github.com/rekcod/rekcod/infrastructure/httputil"
)

// envelope is an alias for the shared wire shape (§6): code == 0 means
// success. Kept as a local name since every handler file in this package
// already refers to it.
type envelope = httputil.Envelope

func writeOK(w http.ResponseWriter, data interface{}) {
	writeEnvelope(w, http.StatusOK, envelope{Msg: "ok", Code: 0, Data: data})
}

// writeServiceErr renders a *errors.ServiceError into the envelope. wireStatus
// is the actual HTTP status line to send; it is deliberately separate from
// se.HTTPStatus (which becomes the envelope's code field) since several
// routes report downstream/engine failures as HTTP 200 with a non-zero code
// rather than surfacing the failure at the transport layer.
func writeServiceErr(w http.ResponseWriter, wireStatus int, se *errors.ServiceError) {
	writeEnvelope(w, wireStatus, envelope{Msg: se.Message, Code: se.HTTPStatus})
}

func writeEnvelope(w http.ResponseWriter, httpStatus int, env envelope) {
	httputil.WriteEnvelope(w, httpStatus, env)
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(out)
}
