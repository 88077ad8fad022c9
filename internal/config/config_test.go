package config

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: Config{
				Pool:   PoolConfig{MemoryHeadroomFactor: 4},
				Mining: MiningConfig{InitialDiff: 1000},
				Store:  StoreConfig{Dir: "./data/chain"},
			},
			wantErr: false,
		},
		{
			name: "zero headroom factor",
			config: Config{
				Pool:   PoolConfig{MemoryHeadroomFactor: 0},
				Mining: MiningConfig{InitialDiff: 1000},
				Store:  StoreConfig{Dir: "./data/chain"},
			},
			wantErr: true,
			errMsg:  "pool.memory_headroom_factor must be positive",
		},
		{
			name: "zero initial diff",
			config: Config{
				Pool:   PoolConfig{MemoryHeadroomFactor: 4},
				Mining: MiningConfig{InitialDiff: 0},
				Store:  StoreConfig{Dir: "./data/chain"},
			},
			wantErr: true,
			errMsg:  "mining.initial_diff must be > 0",
		},
		{
			name: "missing store dir",
			config: Config{
				Pool:   PoolConfig{MemoryHeadroomFactor: 4},
				Mining: MiningConfig{InitialDiff: 1000},
				Store:  StoreConfig{Dir: ""},
			},
			wantErr: true,
			errMsg:  "store.dir is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if err.Error() != tt.errMsg {
					t.Fatalf("expected error %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadGeneratesNodeIDWhenUnset(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Node.ID == "" {
		t.Fatal("expected Load to generate a node.id when unconfigured")
	}

	cfg2, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg2.Node.ID == cfg.Node.ID {
		t.Fatal("expected independently generated node ids to differ")
	}
}

func TestSetDefaultsPopulatesRequiredFields(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mining.InitialDiff == 0 {
		t.Fatal("expected mining.initial_diff default to be non-zero")
	}
	if cfg.Pool.MemoryHeadroomFactor != 4 {
		t.Fatalf("expected default memory headroom factor 4, got %d", cfg.Pool.MemoryHeadroomFactor)
	}
	if cfg.Store.Dir == "" {
		t.Fatal("expected store.dir default to be set")
	}
}
