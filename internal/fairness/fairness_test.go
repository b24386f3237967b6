package fairness

import (
	"strings"
	"testing"
)

func TestMintStreamDeterministic(t *testing.T) {
	tests := []struct {
		name       string
		serverSeed string
		clientSeed string
		nonce      uint64
	}{
		{name: "short seeds", serverSeed: "S", clientSeed: "C", nonce: 0},
		{name: "hex server seed", serverSeed: "9f86d081884c7d659a2feaa0c55ad015", clientSeed: "player", nonce: 42},
		{name: "large nonce", serverSeed: "server", clientSeed: "client", nonce: 1 << 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := MintStream(tt.serverSeed, tt.clientSeed, tt.nonce)
			b := MintStream(tt.serverSeed, tt.clientSeed, tt.nonce)

			for i := 0; i < 64; i++ {
				fa, fb := a(i), b(i)
				if fa != fb {
					t.Errorf("sub-draw %d differs: %v != %v", i, fa, fb)
				}
				if fa < 0 || fa >= 1 {
					t.Errorf("sub-draw %d out of range [0,1): %v", i, fa)
				}
			}
		})
	}
}

func TestDrawGoldenValues(t *testing.T) {
	tests := []struct {
		nonce    uint64
		subIndex int
		digest   string
		want     float64
	}{
		{0, 0, "7d008ece9cff3181ec25d4d40573c43a8ba46fa0dbed698a9458e0c04f7c71ce", 0.4882897619654585},
		{0, 1, "c19a029edb4c31201ecbcf8a36269180bcc29292499915cad921739a87d018de", 0.7562562597116063},
		{1, 0, "237b23173f5b53f69a5b3f5370d5176faa11a563b75256c314fa4d666c2ab6b3", 0.13859767262998202},
	}

	for _, tt := range tests {
		if got := Digest("S", "C", tt.nonce, tt.subIndex); got != tt.digest {
			t.Errorf("Digest(S, C, %d, %d) = %s, want %s", tt.nonce, tt.subIndex, got, tt.digest)
		}
		if got := Draw("S", "C", tt.nonce, tt.subIndex); got != tt.want {
			t.Errorf("Draw(S, C, %d, %d) = %v, want %v", tt.nonce, tt.subIndex, got, tt.want)
		}
	}
}

func TestDrawDependsOnEveryInput(t *testing.T) {
	base := Draw("server", "client", 7, 0)

	variants := map[string]float64{
		"server seed": Draw("server2", "client", 7, 0),
		"client seed": Draw("server", "client2", 7, 0),
		"nonce":       Draw("server", "client", 8, 0),
		"sub index":   Draw("server", "client", 7, 1),
	}
	for name, v := range variants {
		if v == base {
			t.Errorf("changing %s did not change the draw", name)
		}
	}
}

func TestDrawFromDigestBounds(t *testing.T) {
	if got := drawFromDigest(strings.Repeat("0", 64)); got != 0 {
		t.Errorf("zero digest = %v, want 0", got)
	}
	if got := drawFromDigest(strings.Repeat("f", 64)); got >= 1 {
		t.Errorf("max digest = %v, want < 1", got)
	}
}

func TestFairMetaAndHash(t *testing.T) {
	hash := HashSeed("S")
	if len(hash) != 64 {
		t.Fatalf("hash length = %d, want 64", len(hash))
	}

	r := FairMeta(hash, "C", 3)
	if r.ServerSeedHash != hash || r.ClientSeed != "C" || r.Nonce != 3 {
		t.Errorf("unexpected receipt: %+v", r)
	}
}

func TestGenerateSeed(t *testing.T) {
	a, err := GenerateSeed()
	if err != nil {
		t.Fatalf("GenerateSeed failed: %v", err)
	}
	b, err := GenerateSeed()
	if err != nil {
		t.Fatalf("GenerateSeed failed: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("seed length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("two generated seeds are equal")
	}
}
