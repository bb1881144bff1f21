package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

// Server is the main TCP game server.
type Server struct {
	Conf      Config
	Game      *Game
	Metrics   *Metrics
	listener  net.Listener
	webServer *WebServer
}

// NewServer creates a server over a game.
func NewServer(game *Game, cfg Config) *Server {
	return &Server{Conf: cfg, Game: game, Metrics: game.Metrics}
}

// Start begins listening for connections and blocks until the listeners
// close.
func (s *Server) Start() error {
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Conf.Port))
		if err != nil {
			errCh <- fmt.Errorf("server: telnet listener: %w", err)
			return
		}
		s.listener = ln
		log.Printf("Listening (telnet) on port %d", s.Conf.Port)
		s.acceptLoop(ln)
	}()

	if s.Conf.WebPort > 0 {
		s.webServer = NewWebServer(s.Game, s.Conf)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.webServer.Start(); err != nil {
				errCh <- fmt.Errorf("server: web server: %w", err)
			}
		}()
	}

	// Check for early startup errors
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// acceptLoop accepts connections on the listener until it is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes all active listeners.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.webServer.Stop(ctx)
	}
}

// handleConnection manages a single telnet connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	d := NewDescriptor(conn)
	log.Printf("[%s] New connection from %s", d.SessionID, d.Addr)
	if s.Metrics != nil {
		s.Metrics.SessionOpened("telnet")
	}

	defer func() {
		s.Game.DisconnectSession(d.SessionID)
		d.Close()
		if s.Metrics != nil {
			s.Metrics.SessionClosed("telnet")
		}
		log.Printf("[%s] Connection closed from %s", d.SessionID, d.Addr)
	}()

	d.Send(WelcomeText)

	idle := time.Duration(s.Conf.IdleTimeoutSeconds) * time.Second
	for {
		line, err := d.ReadLine(idle)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				d.Send("Idle too long. Goodbye.")
			}
			return
		}
		line = stripTelnet(line)

		if d.State == ConnLogin {
			userID, disconnect := s.Game.handleLoginLine(d, line)
			if disconnect {
				return
			}
			if userID != "" {
				if err := s.Game.ConnectUser(d.SessionID, userID, d); err != nil {
					log.Printf("[%s] connect user %s: %v", d.SessionID, userID, err)
					d.Send("The world is out of reach right now. Try again in a moment.")
					continue
				}
				d.State = ConnConnected
				d.UserID = userID
				log.Printf("[%s] User %s connected from %s", d.SessionID, userID, d.Addr)
			}
			continue
		}

		if quit := s.Game.HandleLine(d.SessionID, line); quit {
			return
		}
	}
}

// stripTelnet removes telnet IAC command sequences and control bytes.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			i += 3
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] < 32 && s[i] != '\t' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}
