package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"lumen/internal/customization"
	"lumen/internal/daemon"
	"lumen/internal/fleet"
	"lumen/internal/logging"
)

// ServiceName is the RPC receiver name clients address.
const ServiceName = "Lumen"

// stopDelay lets the Stop reply reach the client before shutdown closes the
// socket.
const stopDelay = 100 * time.Millisecond

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path. onStop runs
// when a client asks the daemon process to exit and may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, onStop func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	logger = logging.NewComponentLogger(logger, "ipc")
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx, onStop: onStop}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting RPC connections until the server is closed.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.untrack(conn)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
			}()
		}
	}()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
}

// Close stops the server, drops open client connections, and removes the
// socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	onStop func()
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.Ready = status.Ready
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.Scanning = status.Scanning
	resp.MaxTargets = status.MaxTargets
	resp.Monitors = convertViews(status.Monitors)
	resp.ScansCompleted = status.ScansCompleted
	resp.ScansDropped = status.ScansDropped
	resp.Customizations = status.Customizations
	resp.LockPath = status.LockFilePath
	resp.SessionLocked = status.SessionLocked
	if status.LastScan != nil {
		stats := convertStats(*status.LastScan)
		resp.LastScan = &stats
	}
	for _, w := range status.Watchers {
		resp.Watchers = append(resp.Watchers, WatcherStatus{Name: w.Name, Running: w.Running})
	}
	return nil
}

func (s *service) List(_ ListRequest, resp *ListResponse) error {
	resp.Monitors = convertViews(s.daemon.List())
	return nil
}

func (s *service) Scan(req ScanRequest, resp *ScanResponse) error {
	var (
		ran bool
		err error
	)
	if req.RefreshOnly {
		ran, err = s.daemon.Refresh(s.ctx)
	} else {
		ran, err = s.daemon.Scan(s.ctx)
	}
	if err != nil {
		return err
	}
	resp.Ran = ran
	s.logger.Debug("scan requested via IPC",
		logging.Bool("refresh_only", req.RefreshOnly),
		logging.Bool("ran", ran))
	return nil
}

func (s *service) SetBrightness(req SetBrightnessRequest, resp *MonitorResponse) error {
	view, err := s.daemon.Adjust(s.ctx, strings.TrimSpace(req.ID), req.Level, !req.Preview)
	if err != nil {
		return err
	}
	resp.Monitor = convertView(view)
	return nil
}

func (s *service) SetContrast(req SetContrastRequest, resp *MonitorResponse) error {
	view, err := s.daemon.SetContrast(s.ctx, strings.TrimSpace(req.ID), req.Level)
	if err != nil {
		return err
	}
	resp.Monitor = convertView(view)
	return nil
}

func (s *service) SaveCustomization(req SaveCustomizationRequest, resp *SaveCustomizationResponse) error {
	id := strings.TrimSpace(req.Customization.ID)
	if id == "" {
		return errors.New("customization requires a monitor id")
	}
	resp.Stored = s.daemon.SaveCustomization(id, customization.Customization{
		Name:     req.Customization.Name,
		IsUnison: req.Customization.Unison,
		Lowest:   req.Customization.Lowest,
		Highest:  req.Customization.Highest,
	})
	return nil
}

func (s *service) LoadCustomization(req LoadCustomizationRequest, resp *LoadCustomizationResponse) error {
	c, ok := s.daemon.LoadCustomization(strings.TrimSpace(req.ID))
	resp.Found = ok
	if ok {
		resp.Customization = convertCustomization(req.ID, c)
	}
	return nil
}

func (s *service) ListCustomizations(_ ListCustomizationsRequest, resp *ListCustomizationsResponse) error {
	records := s.daemon.Customizations()
	resp.Customizations = make([]Customization, 0, len(records))
	for _, rec := range records {
		c := convertCustomization(rec.ID, rec.Customization)
		c.UpdatedAt = rec.UpdatedAt
		resp.Customizations = append(resp.Customizations, c)
	}
	return nil
}

func (s *service) ExportCustomizations(_ ExportCustomizationsRequest, resp *ExportCustomizationsResponse) error {
	var buf bytes.Buffer
	if err := s.daemon.ExportCustomizations(&buf); err != nil {
		return err
	}
	resp.Document = buf.String()
	return nil
}

func (s *service) ImportCustomizations(req ImportCustomizationsRequest, resp *ImportCustomizationsResponse) error {
	result, err := s.daemon.ImportCustomizations(strings.NewReader(req.Document))
	if err != nil {
		return err
	}
	resp.Stored = result.Stored
	resp.Cleared = result.Cleared
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	if s.onStop == nil {
		return errors.New("daemon does not accept remote stop")
	}
	s.logger.Info("daemon stop requested via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	time.AfterFunc(stopDelay, s.onStop)
	resp.Stopped = true
	return nil
}

func convertViews(views []fleet.View) []Monitor {
	out := make([]Monitor, 0, len(views))
	for _, v := range views {
		out = append(out, convertView(v))
	}
	return out
}

func convertView(v fleet.View) Monitor {
	m := Monitor{
		ID:                 v.ID,
		Name:               v.Name,
		Description:        v.Description,
		DisplayIndex:       v.DisplayIndex,
		MonitorIndex:       v.MonitorIndex,
		Accessible:         v.Accessible,
		Controllable:       v.Controllable,
		Target:             v.Target,
		Unison:             v.Unison,
		Brightness:         v.Brightness,
		AdjustedBrightness: v.AdjustedBrightness,
		Failures:           v.Failures,
		Lowest:             customization.DefaultLowest,
		Highest:            customization.DefaultHighest,
	}
	if v.HasContrast {
		contrast := v.Contrast
		m.Contrast = &contrast
	}
	if v.Customization != nil {
		m.Customized = true
		m.Lowest = v.Customization.Lowest
		m.Highest = v.Customization.Highest
	}
	return m
}

func convertStats(st fleet.Stats) ScanStats {
	return ScanStats{
		PassID:       st.PassID,
		Started:      st.Started,
		Duration:     st.Duration,
		Enumerated:   st.Enumerated,
		Added:        st.Added,
		Removed:      st.Removed,
		Refreshed:    st.Refreshed,
		Failed:       st.Failed,
		Targets:      st.Targets,
		Controllable: st.Controllable,
		Fallback:     st.Fallback,
	}
}

func convertCustomization(id string, c customization.Customization) Customization {
	return Customization{
		ID:      id,
		Name:    c.Name,
		Unison:  c.IsUnison,
		Lowest:  c.Lowest,
		Highest: c.Highest,
	}
}
