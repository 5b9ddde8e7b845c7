package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/bonjohen/cedar-terrace-sub001/internal/middleware"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	"github.com/bonjohen/cedar-terrace-sub001/internal/service"
)

type positionRepoMemory struct {
	positions map[string]*models.ParkingPosition
}

func (m *positionRepoMemory) Create(_ context.Context, position *models.ParkingPosition) error {
	m.positions[position.ID] = position
	return nil
}

func (m *positionRepoMemory) GetByID(_ context.Context, id string) (*models.ParkingPosition, error) {
	position, ok := m.positions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return position, nil
}

func (m *positionRepoMemory) List(_ context.Context, filter models.PositionFilter) ([]models.ParkingPosition, error) {
	out := make([]models.ParkingPosition, 0, len(m.positions))
	for _, position := range m.positions {
		if filter.Site != "" && position.Site != filter.Site {
			continue
		}
		out = append(out, *position)
	}
	return out, nil
}

func (m *positionRepoMemory) SoftDelete(_ context.Context, id string) error {
	if _, ok := m.positions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.positions, id)
	return nil
}

func buildPositionRouter() (*gin.Engine, *positionRepoMemory) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: "test-user",
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	repo := &positionRepoMemory{positions: make(map[string]*models.ParkingPosition)}
	positionHandler := NewPositionHandler(service.NewPositionService(repo, nil, nil))

	read := internalmiddleware.RequireRoles(models.RoleEnforcer, models.RoleAdmin)
	admin := internalmiddleware.RequireRoles(models.RoleAdmin)
	router.POST("/positions", admin, positionHandler.Create)
	router.GET("/positions", read, positionHandler.List)
	router.GET("/positions/locate", read, positionHandler.Locate)
	router.GET("/positions/:id", read, positionHandler.Get)
	router.DELETE("/positions/:id", admin, positionHandler.Delete)
	return router, repo
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestPositionRoutes(t *testing.T) {
	router, repo := buildPositionRouter()

	t.Run("create requires admin", func(t *testing.T) {
		body := `{"site":"cedar-terrace","label":"H-1","type":"HANDICAPPED","centerLat":40.7128,"centerLng":-74.006,"radiusMeters":4}`
		req, _ := http.NewRequest(http.MethodPost, "/positions", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleEnforcer))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("create success", func(t *testing.T) {
		body := `{"site":"cedar-terrace","label":"H-1","type":"HANDICAPPED","centerLat":40.7128,"centerLng":-74.006,"radiusMeters":4}`
		req, _ := http.NewRequest(http.MethodPost, "/positions", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"label":"H-1"`)
		require.Len(t, repo.positions, 1)
	})

	t.Run("create rejects assigned vehicle on handicapped", func(t *testing.T) {
		body := `{"site":"cedar-terrace","label":"H-2","type":"HANDICAPPED","radiusMeters":4,"assignedVehicleId":"veh-1"}`
		req, _ := http.NewRequest(http.MethodPost, "/positions", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("list unauthorized without claims", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/positions?site=cedar-terrace", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("list as enforcer", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/positions?site=cedar-terrace", nil)
		req.Header.Set("X-Test-Role", string(models.RoleEnforcer))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"H-1"`)
	})

	t.Run("locate hit", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/positions/locate?site=cedar-terrace&lat=40.7128&lng=-74.006", nil)
		req.Header.Set("X-Test-Role", string(models.RoleEnforcer))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("locate validates query", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/positions/locate?site=cedar-terrace&lat=forty", nil)
		req.Header.Set("X-Test-Role", string(models.RoleEnforcer))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("delete missing position", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, "/positions/missing", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})
}
