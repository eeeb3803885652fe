package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/middleware"
	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "nimo-qms-test-secret"

// SetupTestDB opens a file-backed SQLite database in the test's temp dir,
// migrates the qms tables and seeds the default defect codes.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "qms.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	// one writer keeps transactions from tripping over SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(entity.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	codes := entity.DefaultDefectCodes()
	if err := db.Create(&codes).Error; err != nil {
		t.Fatalf("seed defect codes: %v", err)
	}
	return db
}

// SetupRouter creates a gin router in test mode.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group behind the JWT middleware.
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs a token for the given user.
func GenerateTestToken(userID, name string, roles, permissions []string) string {
	token, _ := middleware.IssueToken(JWTSecret, middleware.JWTClaims{
		UserID:      userID,
		Name:        name,
		Roles:       roles,
		Permissions: permissions,
	}, time.Hour)
	return token
}

// DefaultTestToken returns a token for an admin test user.
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", "Test Admin", []string{middleware.AdminRole}, []string{"*"})
}

// DoRequest executes a JSON request against the router.
func DoRequest(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the response envelope into a map.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// DataMap returns the envelope's data field as a map, failing the test otherwise.
func DataMap(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("response data is not an object: %v", resp)
	}
	return data
}

// SeedRun inserts a reconciled run without going through the service layer.
func SeedRun(t *testing.T, db *gorm.DB, run *entity.ProductionRun) *entity.ProductionRun {
	t.Helper()
	if run.ID == "" {
		run.ID = "run-" + run.RunCode
	}
	if run.ProducedAt.IsZero() {
		run.ProducedAt = time.Now().UTC()
	}
	if run.Shift == "" {
		run.Shift = entity.ShiftA
	}
	for i := range run.Defects {
		if run.Defects[i].ID == "" {
			run.Defects[i].ID = run.ID + "-d" + string(rune('a'+i))
		}
		run.Defects[i].RunID = run.ID
		run.Defects[i].LineNo = i + 1
	}
	if err := db.Create(run).Error; err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return run
}
