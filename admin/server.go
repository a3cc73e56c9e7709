package admin

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"shiftflow/audit"
	"shiftflow/directory"
	"shiftflow/metrics"
)

// Registry is the view of the tenant fleet the administrative surface needs.
// The tenant supervisor implements it.
type Registry interface {
	Keys() []string
	Directory(key string) (*directory.Service, bool)
	ReportsDir(key string) (string, bool)
}

// Server is the administrative HTTP surface: login, per-tenant approver and
// employee CRUD, report download, health and metrics.
type Server struct {
	registry Registry
	auth     *Authenticator
	log      *zap.Logger
	echo     *echo.Echo
	now      func() time.Time
}

func NewServer(registry Registry, auth *Authenticator, log *zap.Logger) *Server {
	s := &Server{
		registry: registry,
		auth:     auth,
		log:      log,
		echo:     echo.New(),
		now:      time.Now,
	}
	s.echo.HideBanner = true
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.Use(echomiddleware.Recover())

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.POST("/api/login", s.login)

	api := e.Group("/api", s.auth.Middleware)
	api.GET("/tenants", s.listTenants)
	api.GET("/tenants/:key/approvers", s.listApprovers)
	api.POST("/tenants/:key/approvers", s.addApprover)
	api.DELETE("/tenants/:key/approvers/:id", s.removeApprover)
	api.GET("/tenants/:key/employees", s.listEmployees)
	api.POST("/tenants/:key/employees", s.addEmployee)
	api.DELETE("/tenants/:key/employees/:id", s.removeEmployee)
	api.GET("/tenants/:key/report", s.downloadReport)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Handler exposes the routing tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request"})
	}
	token, err := s.auth.Login(req.User, req.Password)
	if err != nil {
		s.log.Warn("admin login rejected", zap.String("user", req.User))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

func (s *Server) listTenants(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"tenants": s.registry.Keys()})
}

func (s *Server) tenantDirectory(c echo.Context) (*directory.Service, bool) {
	dir, ok := s.registry.Directory(c.Param("key"))
	return dir, ok
}

func (s *Server) listApprovers(c echo.Context) error {
	dir, ok := s.tenantDirectory(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
	}
	approvers, err := dir.Approvers(c.Request().Context())
	if err != nil {
		return s.internal(c, "list approvers", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"approvers": approvers})
}

type actorRequest struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

func (s *Server) addApprover(c echo.Context) error {
	dir, ok := s.tenantDirectory(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
	}
	var req actorRequest
	if err := c.Bind(&req); err != nil || req.ID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "numeric id required"})
	}
	if err := dir.GrantRole(c.Request().Context(), req.ID, req.DisplayName, directory.RoleApprover); err != nil {
		return s.internal(c, "grant approver", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": req.ID})
}

func (s *Server) removeApprover(c echo.Context) error {
	dir, ok := s.tenantDirectory(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "numeric id required"})
	}
	if err := dir.RevokeActor(c.Request().Context(), id); err != nil {
		if errors.Is(err, directory.ErrActorNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown actor"})
		}
		return s.internal(c, "revoke actor", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listEmployees(c echo.Context) error {
	dir, ok := s.tenantDirectory(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
	}
	employees, err := dir.Employees(c.Request().Context())
	if err != nil {
		return s.internal(c, "list employees", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"employees": employees})
}

type employeeRequest struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

func (s *Server) addEmployee(c echo.Context) error {
	dir, ok := s.tenantDirectory(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
	}
	var req employeeRequest
	if err := c.Bind(&req); err != nil || req.ID <= 0 || req.FullName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id and full_name required"})
	}
	if err := dir.AddEmployee(c.Request().Context(), req.ID, req.FullName); err != nil {
		return s.internal(c, "add employee", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": req.ID})
}

func (s *Server) removeEmployee(c echo.Context) error {
	dir, ok := s.tenantDirectory(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "numeric id required"})
	}
	if err := dir.RemoveEmployee(c.Request().Context(), id); err != nil {
		if errors.Is(err, directory.ErrEmployeeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown employee"})
		}
		return s.internal(c, "remove employee", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// downloadReport serves the current month's audit export.
func (s *Server) downloadReport(c echo.Context) error {
	reportsDir, ok := s.registry.ReportsDir(c.Param("key"))
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown tenant"})
	}
	path := audit.Filename(reportsDir, s.now())
	if _, err := os.Stat(path); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no report for the current period"})
	}
	return c.Attachment(path, "report.csv")
}

func (s *Server) internal(c echo.Context, op string, err error) error {
	s.log.Error(op+" failed", zap.String("tenant", c.Param("key")), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
