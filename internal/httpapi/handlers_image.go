package httpapi

import (
	"io"
	"net/http"

	"github.com/docker/docker/api/types/filters"

	"github.com/rekcod/rekcod/infrastructure/errors"
)

func filtersArgsForRef(ref string) filters.Args {
	return filters.NewArgs(filters.Arg("reference", ref))
}

type pullAutoBody struct {
	NodeName string `json:"node_name"`
	Image    string `json:"image"`
}

// handleImagePullAuto implements image/pull_auto: prefer a peer node that
// already has the image (export -> import stream), falling back to a
// registry pull via create_image. Peer order is registry insertion order
// of GetAllNodes, an arbitrary but stable choice (§9 open question).
func (s *Server) handleImagePullAuto(w http.ResponseWriter, r *http.Request) {
	var body pullAutoBody
	if err := decodeBody(r, &body); err != nil || body.NodeName == "" || body.Image == "" {
		writeServiceErr(w, http.StatusBadRequest, errors.InvalidInput("body", "node_name and image are required"))
		return
	}

	target, err := s.Registry.GetNode(r.Context(), body.NodeName)
	if err != nil || target == nil {
		writeServiceErr(w, http.StatusBadRequest, errors.NotFound("node", body.NodeName))
		return
	}

	peers, err := s.Registry.GetAllNodes(r.Context(), false)
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.DatabaseError("list peers", err))
		return
	}

	for _, peer := range peers {
		if peer.Node.Name == body.NodeName {
			continue
		}
		images, err := peer.Engine.ListImages(r.Context(), filtersArgsForRef(body.Image))
		if err != nil || len(images) == 0 {
			continue
		}

		export, err := peer.Engine.ExportImage(r.Context(), body.Image)
		if err != nil {
			continue
		}
		loadStream, err := target.Engine.ImportImageStream(r.Context(), export)
		export.Close()
		if err != nil {
			continue
		}
		defer loadStream.Close()
		_, _ = io.Copy(io.Discard, loadStream)
		writeOK(w, map[string]string{"source": "peer:" + peer.Node.Name})
		return
	}

	pullStream, err := target.Engine.CreateImage(r.Context(), body.Image)
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.EngineError("image_pull", err))
		return
	}
	defer pullStream.Close()
	_, _ = io.Copy(io.Discard, pullStream)
	writeOK(w, map[string]string{"source": "registry"})
}
