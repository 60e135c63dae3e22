package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type Server struct {
	ListenAddr    string `env:"LISTEN_ADDR, default=0.0.0.0:7433"`
	DBPath        string `env:"DB_PATH, default=stagehand.db"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	QueueSize     int    `env:"QUEUE_SIZE, default=256"`
	Workers       int    `env:"WORKERS, default=4"`
}

type Repo struct {
	Owner string `env:"OWNER, required"`
	Name  string `env:"NAME, required"`
	Token string `env:"TOKEN, required"`
}

type Deploy struct {
	// directory holding one environment descriptor per file, versioned
	// with the repository tree
	ConfigDir string `env:"CONFIG_DIR, default=.stagehand/environments"`

	// the workflow file the external runner executes; deployments are
	// refused when it is absent at the triggering commit
	WorkflowPath string `env:"WORKFLOW_PATH, default=.github/workflows/deployment.yml"`

	// ref namespace used for per-environment locks
	LockPrefix string `env:"LOCK_PREFIX, default=refs/heads/deployments/"`
}

type Config struct {
	Server Server `env:",prefix=STAGEHAND_SERVER_"`
	Repo   Repo   `env:",prefix=STAGEHAND_REPO_"`
	Deploy Deploy `env:",prefix=STAGEHAND_DEPLOY_"`
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	err := envconfig.Process(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
