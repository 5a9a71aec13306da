// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"net/http"

	internaljson "github.com/blisspixel/deepr/internal/json"
)

// ProtectedResourceMetadata is the RFC 9728 document a resource
// server publishes at /.well-known/oauth-protected-resource so
// clients can discover its authorization servers.
type ProtectedResourceMetadata struct {
	Resource              string   `json:"resource"`
	AuthorizationServers  []string `json:"authorization_servers,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
	BearerMethods         []string `json:"bearer_methods_supported,omitempty"`
	ResourceName          string   `json:"resource_name,omitempty"`
	ResourceDocumentation string   `json:"resource_documentation,omitempty"`
}

// ProtectedResourceMetadataHandler serves the metadata document.
// Mount it at the well-known path, outside [RequireBearerToken]:
// clients fetch it precisely when they have no token yet.
func ProtectedResourceMetadataHandler(metadata *ProtectedResourceMetadata) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
			return
		}
		body, err := internaljson.Marshal(metadata)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
}
