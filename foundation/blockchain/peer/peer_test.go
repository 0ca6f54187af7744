package peer_test

import (
	"testing"

	"github.com/ardanlabs/mycoin/foundation/blockchain/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{Host: "host1"}, {Host: "host2"}, {Host: "host3"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewPeerSet()

			for _, peer := range tst.peers {
				ps.Add(peer)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			peers = ps.Copy("host2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_Connections(t *testing.T) {
	ps := peer.NewPeerSet()
	ps.Add(peer.New("host1"))
	ps.Add(peer.New("host2"))

	ps.Connected(peer.New("host1"), "conn1")

	unconnected := ps.Unconnected()
	if len(unconnected) != 1 || unconnected[0].Host != "host2" {
		t.Fatalf("Should only have host2 unconnected, got %v.", unconnected)
	}

	status := ps.Status()
	if len(status) != 2 || !status[0].Connected || status[1].Connected {
		t.Fatalf("Should report host1 connected and host2 not, got %v.", status)
	}

	freed := ps.Disconnected("conn1")
	if len(freed) != 1 || freed[0].Host != "host1" {
		t.Fatalf("Should free host1 when its connection closes, got %v.", freed)
	}

	if len(ps.Unconnected()) != 2 {
		t.Fatalf("Should have both hosts unconnected after the connection closed.")
	}
}
