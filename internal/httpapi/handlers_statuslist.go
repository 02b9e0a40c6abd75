package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/statuslist"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

type createStatusListRequest struct {
	IssuerID     string              `json:"issuerId" binding:"required"`
	Purpose      model.StatusPurpose `json:"purpose" binding:"required"`
	StatusSize   int                 `json:"statusSize"`
	TotalEntries int                 `json:"totalEntries"`
	TTLMillis    *int64              `json:"ttl"`
}

func (s *Server) endpointCreateStatusList(c *gin.Context) (any, int, error) {
	var req createStatusListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, 0, apierror.Wrap(apierror.RequestValidation, err)
	}

	var opts []statuslist.CreateOption
	if req.TotalEntries > 0 {
		opts = append(opts, statuslist.WithTotalEntries(req.TotalEntries))
	}
	if req.TTLMillis != nil {
		opts = append(opts, statuslist.WithTTL(time.Duration(*req.TTLMillis)*time.Millisecond))
	}

	list, err := s.lists.FindOrCreateStatusList(c.Request.Context(), req.IssuerID, req.Purpose, req.StatusSize, opts...)
	if err != nil {
		return nil, 0, err
	}

	return listResponse(list), http.StatusCreated, nil
}

func (s *Server) endpointListStatusLists(c *gin.Context) (any, int, error) {
	filter := statuslist.ListFilter{
		IssuerID:    c.Query("issuerId"),
		Purpose:     model.StatusPurpose(c.Query("purpose")),
		HasCapacity: c.Query("hasCapacity") == "true",
	}

	lists, err := s.lists.ListAll(c.Request.Context(), filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]map[string]any, 0, len(lists))
	for _, l := range lists {
		out = append(out, listResponse(l))
	}
	return out, http.StatusOK, nil
}

func (s *Server) endpointGetStatusListCredential(c *gin.Context) (any, int, error) {
	id := c.Param("id")
	list, err := s.lists.GetList(c.Request.Context(), id)
	if err != nil {
		return nil, 0, err
	}

	doc := statuslist.ToBitstringStatusListCredential(list, s.issuerID, s.baseURL)
	signed, err := signCredentialDocument(doc, s.keys, s.baseURL)
	if err != nil {
		return nil, 0, err
	}

	etag, err := documentETag(signed)
	if err != nil {
		return nil, 0, err
	}

	c.Header("Content-Type", "application/vc+ld+json")
	c.Header("Cache-Control", "public, max-age=60")
	c.Header("ETag", etag)

	return signed, http.StatusOK, nil
}

func (s *Server) endpointGetStatusListStats(c *gin.Context) (any, int, error) {
	id := c.Param("id")
	list, err := s.lists.GetList(c.Request.Context(), id)
	if err != nil {
		return nil, 0, err
	}

	available := list.TotalEntries - list.UsedEntries
	utilization := float64(0)
	if list.TotalEntries > 0 {
		utilization = 100 * float64(list.UsedEntries) / float64(list.TotalEntries)
	}

	return gin.H{
		"totalEntries":       list.TotalEntries,
		"usedEntries":        list.UsedEntries,
		"availableEntries":   available,
		"utilizationPercent": utilization,
	}, http.StatusOK, nil
}

type updateCredentialStatusRequest struct {
	Status  int                 `json:"status"`
	Reason  string              `json:"reason"`
	Purpose model.StatusPurpose `json:"purpose" binding:"required"`
}

func (s *Server) endpointUpdateCredentialStatus(c *gin.Context) (any, int, error) {
	var req updateCredentialStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, 0, apierror.Wrap(apierror.RequestValidation, err)
	}

	credentialID := c.Param("id")
	entry, err := s.lists.UpdateCredentialStatus(c.Request.Context(), statuslist.UpdateStatusRequest{
		CredentialID: credentialID,
		Purpose:      req.Purpose,
		Status:       req.Status,
		Reason:       req.Reason,
	})
	if err != nil {
		// Status updates report failure in the response body rather than
		// as a bare problem document.
		apiErr := apierror.FromError(err)
		return gin.H{"success": false, "error": apiErr.Error()}, apiErr.Problem().Status, nil
	}

	resp := gin.H{
		"success":      true,
		"credentialId": entry.CredentialID,
		"newStatus":    entry.CurrentStatus,
	}
	if entry.Reason != "" {
		resp["reason"] = entry.Reason
	}
	return resp, http.StatusOK, nil
}

func (s *Server) endpointJWKS(c *gin.Context) (any, int, error) {
	return s.keys.GetJWKSet(), http.StatusOK, nil
}

func listResponse(l *statuslist.List) map[string]any {
	return map[string]any{
		"id":           l.ID,
		"issuerId":     l.IssuerID,
		"purpose":      l.Purpose,
		"statusSize":   l.StatusSize,
		"totalEntries": l.TotalEntries,
		"usedEntries":  l.UsedEntries,
		"createdAt":    l.CreatedAt,
		"updatedAt":    l.UpdatedAt,
	}
}

func documentETag(doc map[string]any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", apierror.Wrap(apierror.InternalError, err)
	}
	return fmt.Sprintf("%q", hashHex(raw)), nil
}
