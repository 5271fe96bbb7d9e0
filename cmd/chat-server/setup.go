package main

import (
	"errors"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/env"
	authsvc "support-chat-backend/internal/service/auth"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func setupAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup-admin",
		Usage: "Create an admin account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Admin `EMAIL`", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Admin `PASSWORD`, at least 6 characters", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Display `NAME`"},
			&cli.StringFlag{Name: "organization", Usage: "Organization `ID`, defaults to DEFAULT_ORGANIZATION_ID"},
		},
		Action: func(c *cli.Context) error {
			if env.Get(env.StoreDriver) == "memory" {
				return errors.New("setup-admin needs a persistent store, STORE_DRIVER is memory")
			}
			st, err := openStores(c.Context)
			if err != nil {
				return err
			}

			admin, err := st.auth.CreateAdmin(c.Context, authsvc.CreateAdminParams{
				Email:          c.String("email"),
				Password:       c.String("password"),
				Name:           c.String("name"),
				OrganizationID: c.String("organization"),
			})
			if err != nil {
				return err
			}
			log.Info().Str("admin", admin.AdminID).Str("email", admin.Email).Str("organization", admin.OrganizationID).Msg("admin created")
			return nil
		},
	}
}

func setupTablesCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup-tables",
		Usage: "Create the DynamoDB tables and indexes if missing",
		Action: func(c *cli.Context) error {
			db, err := database.NewDatabase(c.Context)
			if err != nil {
				return err
			}
			if err := db.EnsureTables(c.Context, database.Schema); err != nil {
				return err
			}
			log.Info().Int("tables", len(database.Schema)).Msg("tables ready")
			return nil
		},
	}
}
