package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// AceRequest is one access-control entry of an ACL update
type AceRequest struct {
	PrincipalID string   `json:"principal_id"`
	Permissions []string `json:"permissions"`
}

// ApplyACLRequest is the request body for replacing the local ACEs of an object
type ApplyACLRequest struct {
	Aces         []AceRequest `json:"aces"`
	ACLInherited *bool        `json:"acl_inherited"`
}

// ACLResponse is the effective ACL of an object
type ACLResponse struct {
	LocalAces     []lifecycle.Ace `json:"local_aces"`
	InheritedAces []lifecycle.Ace `json:"inherited_aces"`
}

func newACLResponse(acl *lifecycle.ACL) ACLResponse {
	resp := ACLResponse{LocalAces: acl.LocalAces, InheritedAces: acl.InheritedAces}
	if resp.LocalAces == nil {
		resp.LocalAces = []lifecycle.Ace{}
	}
	if resp.InheritedAces == nil {
		resp.InheritedAces = []lifecycle.Ace{}
	}
	return resp
}

// GetACL returns local and inherited entries of an object
func (h *Handler) GetACL(w http.ResponseWriter, r *http.Request) {
	acl, err := h.service.GetEffectiveACL(r.Context(), repositoryID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "Failed to get acl", err)
		return
	}
	render.JSON(w, r, newACLResponse(acl))
}

// ApplyACL replaces the local entries of an object
func (h *Handler) ApplyACL(w http.ResponseWriter, r *http.Request) {
	var req ApplyACLRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	aces := make([]lifecycle.Ace, len(req.Aces))
	for i, a := range req.Aces {
		aces[i] = lifecycle.Ace{PrincipalID: a.PrincipalID, Permissions: a.Permissions}
	}
	acl, err := h.service.ApplyACL(r.Context(), lifecycle.ApplyACLRequest{
		RepositoryID: repositoryID(r),
		ObjectID:     chi.URLParam(r, "id"),
		Aces:         aces,
		ACLInherited: req.ACLInherited,
	})
	if err != nil {
		writeError(w, r, "Failed to apply acl", err)
		return
	}
	render.JSON(w, r, newACLResponse(acl))
}

// ApplyPolicy attaches a policy to an object
func (h *Handler) ApplyPolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ApplyPolicy(r.Context(), repositoryID(r), chi.URLParam(r, "policyID"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "Failed to apply policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemovePolicy detaches a policy from an object
func (h *Handler) RemovePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePolicy(r.Context(), repositoryID(r), chi.URLParam(r, "policyID"), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "Failed to remove policy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
