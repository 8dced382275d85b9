// Package redisstub runs a minimal in-process Redis server speaking just
// enough RESP for the lifecycle event publisher: XADD with MAXLEN trimming
// plus the handshake commands a client sends on connect.
package redisstub

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Options struct {
	Password string
}

type Server struct {
	opts     Options
	listener net.Listener
	addr     string
	mu       sync.Mutex
	streams  map[string][]Entry
	closed   chan struct{}
}

// Entry is one stream record as stored by XADD.
type Entry struct {
	ID     string
	Values map[string]string
}

func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server := &Server{
		opts:     opts,
		listener: ln,
		addr:     ln.Addr().String(),
		streams:  make(map[string][]Entry),
		closed:   make(chan struct{}),
	}
	go server.serve()
	return server, nil
}

func (s *Server) Addr() string {
	return s.addr
}

// StreamEntries returns a copy of the entries appended to the named stream.
func (s *Server) StreamEntries(stream string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.streams[stream]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func (s *Server) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	return nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	authenticated := s.opts.Password == ""
	for {
		args, err := readArray(reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			_ = writeError(writer, "ERR wrong number of arguments")
			continue
		}
		switch strings.ToUpper(args[0]) {
		case "PING":
			if err := writeSimpleString(writer, "PONG"); err != nil {
				return
			}
		case "AUTH":
			password := args[len(args)-1]
			if s.opts.Password == "" || password == s.opts.Password {
				authenticated = true
				if err := writeSimpleString(writer, "OK"); err != nil {
					return
				}
			} else if err := writeError(writer, "WRONGPASS invalid username-password pair"); err != nil {
				return
			}
		case "SELECT":
			if err := writeSimpleString(writer, "OK"); err != nil {
				return
			}
		case "HELLO", "CLIENT":
			// The client tolerates these failing and falls back to RESP2.
			if err := writeError(writer, "ERR unsupported command"); err != nil {
				return
			}
		default:
			if !authenticated {
				if err := writeError(writer, "NOAUTH Authentication required."); err != nil {
					return
				}
				continue
			}
			if !s.dispatch(writer, args) {
				return
			}
		}
	}
}

func (s *Server) dispatch(writer *bufio.Writer, args []string) bool {
	switch strings.ToUpper(args[0]) {
	case "XADD":
		return s.handleXAdd(writer, args)
	case "XLEN":
		if len(args) != 2 {
			_ = writeError(writer, "ERR wrong number of arguments for 'xlen'")
			return false
		}
		s.mu.Lock()
		length := int64(len(s.streams[args[1]]))
		s.mu.Unlock()
		return writeInteger(writer, length) == nil
	default:
		_ = writeError(writer, "ERR unsupported command")
		return false
	}
}

// handleXAdd accepts "XADD stream [MAXLEN [~] n] id field value ...". Trimming
// is honoured so MaxLen-capped publishers see realistic behaviour.
func (s *Server) handleXAdd(writer *bufio.Writer, args []string) bool {
	if len(args) < 5 {
		_ = writeError(writer, "ERR wrong number of arguments for 'xadd'")
		return false
	}
	idx := 2
	maxLen := -1
	if strings.ToUpper(args[idx]) == "MAXLEN" {
		idx++
		if idx < len(args) && (args[idx] == "~" || args[idx] == "=") {
			idx++
		}
		if idx >= len(args) {
			_ = writeError(writer, "ERR syntax error")
			return false
		}
		parsed, err := strconv.Atoi(args[idx])
		if err != nil || parsed < 0 {
			_ = writeError(writer, "ERR invalid MAXLEN")
			return false
		}
		maxLen = parsed
		idx++
	}
	if idx >= len(args) {
		_ = writeError(writer, "ERR syntax error")
		return false
	}
	id := args[idx]
	if id == "*" {
		id = fmt.Sprintf("%d-0", time.Now().UnixNano())
	}
	idx++
	if (len(args)-idx)%2 != 0 || len(args) == idx {
		_ = writeError(writer, "ERR wrong number of arguments for 'xadd'")
		return false
	}
	values := make(map[string]string)
	for i := idx; i+1 < len(args); i += 2 {
		values[args[i]] = args[i+1]
	}

	s.mu.Lock()
	stream := args[1]
	entries := append(s.streams[stream], Entry{ID: id, Values: values})
	if maxLen >= 0 && len(entries) > maxLen {
		entries = entries[len(entries)-maxLen:]
	}
	s.streams[stream] = entries
	s.mu.Unlock()

	return writeBulkString(writer, id) == nil
}

func readArray(r *bufio.Reader) ([]string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if prefix != '*' {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, length)
	for i := 0; i < length; i++ {
		arg, err := readBulkString(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	return strconv.Atoi(line)
}

func readBulkString(r *bufio.Reader) (string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if prefix != '$' {
		return "", fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	buf := make([]byte, length+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:length]), nil
}

func writeSimpleString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "+%s\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeBulkString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(value), value); err != nil {
		return err
	}
	return w.Flush()
}

func writeInteger(w *bufio.Writer, value int64) error {
	if _, err := fmt.Fprintf(w, ":%d\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeError(w *bufio.Writer, msg string) error {
	if _, err := fmt.Fprintf(w, "-%s\r\n", msg); err != nil {
		return err
	}
	return w.Flush()
}
