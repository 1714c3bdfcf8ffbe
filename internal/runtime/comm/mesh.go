package comm

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/memberlist"
)

// MeshConfig configures a gossip-discovered rank group.
type MeshConfig struct {
	// NodeID is the unique node identifier. Rank order is the position of
	// the node id in the sorted member list, so ids must be stable across
	// a run for the coordinator to be deterministic.
	NodeID string

	// BindAddr / BindPort bind the gossip listener.
	BindAddr string
	BindPort int

	// DataAddr is this node's host:port for collective data exchange.
	// The coordinator listens here; other ranks learn it via gossip
	// metadata and dial the coordinator's.
	DataAddr string

	// SeedNodes are the initial gossip contacts.
	SeedNodes []string

	// ExpectedRanks is the group size to wait for before rank assignment.
	ExpectedRanks int

	// JoinTimeout bounds the wait for the full membership.
	JoinTimeout time.Duration

	// Logger for membership and exchange events.
	Logger *slog.Logger
}

func (c *MeshConfig) validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.BindAddr == "" {
		return fmt.Errorf("bind_addr is required")
	}
	if c.DataAddr == "" {
		return fmt.Errorf("data_addr is required")
	}
	if c.ExpectedRanks < 1 {
		return fmt.Errorf("expected_ranks must be at least 1")
	}
	return nil
}

// meshComm is one process of a gossip-discovered group. The coordinator
// serves collectives over TCP; every other rank holds one connection to it.
type meshComm struct {
	cfg        MeshConfig
	rank       int
	size       int
	memberList *memberlist.Memberlist
	logger     *slog.Logger

	// Coordinator: one connection per non-coordinator rank, indexed rank-1.
	peerConns []net.Conn
	listener  net.Listener

	// Non-coordinator: connection to the coordinator.
	coordConn net.Conn

	closed bool
}

// NewMesh joins the gossip group, waits for the expected membership, and
// establishes the collective exchange topology. Blocks until every rank is
// connected or the join timeout expires.
func NewMesh(cfg MeshConfig) (Comm, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("comm: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = 30 * time.Second
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.Delegate = &metadataDelegate{dataAddr: []byte(cfg.DataAddr)}

	// Route memberlist's log lines through hclog into our logger.
	hl := hclog.New(&hclog.LoggerOptions{
		Name:   "memberlist",
		Level:  hclog.Warn,
		Output: &slogWriter{logger: cfg.Logger},
	})
	mlConfig.Logger = hl.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("comm: create memberlist: %w", err)
	}

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("comm: join seed nodes: %w", err)
		}
	}

	m := &meshComm{
		cfg:        cfg,
		memberList: ml,
		logger:     cfg.Logger,
	}

	if err := m.waitForMembers(); err != nil {
		ml.Shutdown()
		return nil, err
	}
	if err := m.connect(); err != nil {
		ml.Shutdown()
		return nil, err
	}

	m.logger.Info("rank group established",
		"node_id", cfg.NodeID,
		"rank", m.rank,
		"size", m.size)

	return m, nil
}

// waitForMembers polls membership until the expected rank count is present,
// then derives this node's rank from the sorted member names.
func (m *meshComm) waitForMembers() error {
	deadline := time.Now().Add(m.cfg.JoinTimeout)
	for {
		members := m.memberList.Members()
		if len(members) >= m.cfg.ExpectedRanks {
			names := make([]string, len(members))
			for i, node := range members {
				names[i] = node.Name
			}
			sort.Strings(names)

			for i, name := range names {
				if name == m.cfg.NodeID {
					m.rank = i
				}
			}
			m.size = len(names)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("comm: %w: have %d of %d ranks",
				ErrMembersTimedOut, len(members), m.cfg.ExpectedRanks)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// connect builds the star topology: the coordinator accepts one connection
// per peer; peers dial the coordinator's data address from gossip metadata.
func (m *meshComm) connect() error {
	if m.rank == 0 {
		ln, err := net.Listen("tcp", m.cfg.DataAddr)
		if err != nil {
			return fmt.Errorf("comm: listen %s: %w", m.cfg.DataAddr, err)
		}
		m.listener = ln
		m.peerConns = make([]net.Conn, m.size-1)

		for i := 0; i < m.size-1; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return fmt.Errorf("comm: accept peer: %w", err)
			}
			// First frame on a fresh connection announces the peer's rank.
			var buf [4]byte
			if _, err := io.ReadFull(conn, buf[:]); err != nil {
				return fmt.Errorf("comm: read peer rank: %w", err)
			}
			peerRank := int(binary.BigEndian.Uint32(buf[:]))
			if peerRank < 1 || peerRank >= m.size {
				return fmt.Errorf("comm: invalid peer rank %d", peerRank)
			}
			m.peerConns[peerRank-1] = conn
		}
		return nil
	}

	coordAddr := m.coordinatorDataAddr()
	if coordAddr == "" {
		return fmt.Errorf("comm: coordinator data address not in gossip metadata")
	}
	conn, err := net.DialTimeout("tcp", coordAddr, m.cfg.JoinTimeout)
	if err != nil {
		return fmt.Errorf("comm: dial coordinator %s: %w", coordAddr, err)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(m.rank))
	if _, err := conn.Write(buf[:]); err != nil {
		conn.Close()
		return fmt.Errorf("comm: announce rank: %w", err)
	}
	m.coordConn = conn
	return nil
}

// coordinatorDataAddr finds the data address of the rank-0 node.
func (m *meshComm) coordinatorDataAddr() string {
	members := m.memberList.Members()
	names := make([]string, len(members))
	byName := make(map[string]*memberlist.Node, len(members))
	for i, node := range members {
		names[i] = node.Name
		byName[node.Name] = node
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return string(byName[names[0]].Meta)
}

func (m *meshComm) Rank() int                  { return m.rank }
func (m *meshComm) Size() int                  { return m.size }
func (m *meshComm) IsCoordinator() bool        { return m.rank == 0 }
func (m *meshComm) SupportsCollectiveIO() bool { return true }

func (m *meshComm) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	for _, conn := range m.peerConns {
		if conn != nil {
			conn.Close()
		}
	}
	if m.coordConn != nil {
		m.coordConn.Close()
	}
	if m.listener != nil {
		m.listener.Close()
	}
	if err := m.memberList.Leave(time.Second); err != nil {
		m.logger.Warn("gossip leave failed", "error", err)
	}
	return m.memberList.Shutdown()
}

// Frame layout for the collective exchange:
// uint32 payload length | payload (big-endian float64s or int64s).
func writeFrame(conn net.Conn, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func encodeFloats(vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func decodeFloats(payload []byte) ([]float64, error) {
	if len(payload)%8 != 0 {
		return nil, fmt.Errorf("comm: float payload length %d not a multiple of 8", len(payload))
	}
	out := make([]float64, len(payload)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.BigEndian.Uint64(payload[i*8:]))
	}
	return out, nil
}

// exchange runs one collective round: peers send their contribution and
// receive a response; the coordinator collects all contributions, combines
// them with fn, and answers each peer with respond.
func (m *meshComm) exchange(
	contribution []byte,
	combine func(contribs [][]byte) error,
	respond func(peerRank int) []byte,
) ([][]byte, error) {
	if m.closed {
		return nil, ErrClosed
	}

	if m.rank != 0 {
		if err := writeFrame(m.coordConn, contribution); err != nil {
			return nil, fmt.Errorf("comm: send contribution: %w", err)
		}
		resp, err := readFrame(m.coordConn)
		if err != nil {
			return nil, fmt.Errorf("comm: read response: %w", err)
		}
		return [][]byte{resp}, nil
	}

	contribs := make([][]byte, m.size)
	contribs[0] = contribution
	for r := 1; r < m.size; r++ {
		payload, err := readFrame(m.peerConns[r-1])
		if err != nil {
			return nil, fmt.Errorf("comm: read rank %d contribution: %w", r, err)
		}
		contribs[r] = payload
	}
	if combine != nil {
		if err := combine(contribs); err != nil {
			return nil, err
		}
	}
	for r := 1; r < m.size; r++ {
		if err := writeFrame(m.peerConns[r-1], respond(r)); err != nil {
			return nil, fmt.Errorf("comm: respond rank %d: %w", r, err)
		}
	}
	return contribs, nil
}

func (m *meshComm) Barrier() error {
	_, err := m.exchange(nil, nil, func(int) []byte { return nil })
	return err
}

func (m *meshComm) ReduceSum(vals []float64) ([]float64, error) {
	if m.rank != 0 {
		if _, err := m.exchange(encodeFloats(vals), nil, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	sum := make([]float64, len(vals))
	copy(sum, vals)
	combine := func(contribs [][]byte) error {
		for r := 1; r < m.size; r++ {
			part, err := decodeFloats(contribs[r])
			if err != nil {
				return err
			}
			if len(part) != len(sum) {
				return ErrLengthMismatch
			}
			for i, v := range part {
				sum[i] += v
			}
		}
		return nil
	}
	if _, err := m.exchange(nil, combine, func(int) []byte { return nil }); err != nil {
		return nil, err
	}
	return sum, nil
}

func (m *meshComm) Gather(vals []float64) ([][]float64, error) {
	if m.rank != 0 {
		if _, err := m.exchange(encodeFloats(vals), nil, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	out := make([][]float64, m.size)
	out[0] = append([]float64(nil), vals...)
	combine := func(contribs [][]byte) error {
		for r := 1; r < m.size; r++ {
			part, err := decodeFloats(contribs[r])
			if err != nil {
				return err
			}
			out[r] = part
		}
		return nil
	}
	if _, err := m.exchange(nil, combine, func(int) []byte { return nil }); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *meshComm) Scatter(parts [][]float64) ([]float64, error) {
	if m.rank != 0 {
		resp, err := m.exchange(nil, nil, nil)
		if err != nil {
			return nil, err
		}
		return decodeFloats(resp[0])
	}

	if len(parts) != m.size {
		return nil, ErrScatterShape
	}
	respond := func(peerRank int) []byte {
		return encodeFloats(parts[peerRank])
	}
	if _, err := m.exchange(nil, nil, respond); err != nil {
		return nil, err
	}
	return parts[0], nil
}

func (m *meshComm) AllGatherInt(v int) ([]int, error) {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(int64(v)))

	if m.rank != 0 {
		resp, err := m.exchange(payload, nil, nil)
		if err != nil {
			return nil, err
		}
		if len(resp[0])%8 != 0 {
			return nil, fmt.Errorf("comm: bad all-gather response length %d", len(resp[0]))
		}
		out := make([]int, len(resp[0])/8)
		for i := range out {
			out[i] = int(int64(binary.BigEndian.Uint64(resp[0][i*8:])))
		}
		return out, nil
	}

	out := make([]int, m.size)
	out[0] = v
	all := make([]byte, 8*m.size)
	combine := func(contribs [][]byte) error {
		for r := 1; r < m.size; r++ {
			if len(contribs[r]) != 8 {
				return fmt.Errorf("comm: bad all-gather contribution from rank %d", r)
			}
			out[r] = int(int64(binary.BigEndian.Uint64(contribs[r])))
		}
		for i, x := range out {
			binary.BigEndian.PutUint64(all[i*8:], uint64(int64(x)))
		}
		return nil
	}
	respond := func(int) []byte { return all }
	if _, err := m.exchange(nil, combine, respond); err != nil {
		return nil, err
	}
	return out, nil
}

// metadataDelegate publishes this node's data address via gossip metadata.
type metadataDelegate struct {
	dataAddr []byte
}

// NodeMeta returns metadata about this node (up to 512 bytes).
func (d *metadataDelegate) NodeMeta(limit int) []byte {
	if len(d.dataAddr) > limit {
		return d.dataAddr[:limit]
	}
	return d.dataAddr
}

// NotifyMsg is called when a user message is received (not used).
func (d *metadataDelegate) NotifyMsg([]byte) {}

// GetBroadcasts is called to get broadcasts to send (not used).
func (d *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState is used for push/pull state sync (not used).
func (d *metadataDelegate) LocalState(join bool) []byte { return nil }

// MergeRemoteState is used for push/pull state sync (not used).
func (d *metadataDelegate) MergeRemoteState(buf []byte, join bool) {}

// slogWriter adapts slog.Logger to io.Writer for hclog output.
type slogWriter struct {
	logger *slog.Logger
}

// Write implements io.Writer.
func (w *slogWriter) Write(p []byte) (n int, err error) {
	w.logger.Debug(string(p))
	return len(p), nil
}
