// Command promote changes the role of an existing account, e.g. to grant
// the admin role needed for avatar uploads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/utilities"
)

func main() {
	username := flag.String("username", "", "account to change")
	role := flag.String("role", string(entity.RoleAdmin), "new role: user or admin")
	flag.Parse()

	if *username == "" || !entity.Role(*role).Valid() {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = userrepo.NewUserRepo(db).SetRole(ctx, *username, entity.Role(*role))
	switch {
	case errors.Is(err, userrepo.ErrNotFound):
		sugar.Errorw("no such user", "username", *username)
		os.Exit(1)
	case err != nil:
		sugar.Errorw("set role failed", "username", *username, "err", err)
		os.Exit(1)
	}
	sugar.Infow("role updated", "username", *username, "role", *role)
}
