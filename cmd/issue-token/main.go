package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/logger"
	"github.com/stemsi/exstem-live/internal/service"
)

// Mints a JWT signed with JWT_SECRET for manual testing of the live
// websocket and the admin monitor.
func main() {
	var (
		studentID   int
		classID     int
		adminID     int
		roleID      int
		permissions string
		expiry      time.Duration
	)
	flag.IntVar(&studentID, "student", 0, "Student ID to issue a student token for")
	flag.IntVar(&classID, "class", 0, "Class ID embedded in a student token")
	flag.IntVar(&adminID, "admin", 0, "Admin ID to issue an admin token for")
	flag.IntVar(&roleID, "role", 1, "Role ID embedded in an admin token")
	flag.StringVar(&permissions, "perm", service.PermissionLiveMonitor, "Comma separated admin permissions")
	flag.DurationVar(&expiry, "expiry", 0, "Token lifetime (defaults to JWT_EXPIRY_HOURS)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if expiry > 0 {
		cfg.JWTExpiry = expiry
	}
	auth := service.NewAuthService(cfg)

	var (
		token string
		err   error
	)
	switch {
	case studentID > 0 && adminID > 0:
		log.Fatal().Msg("Use either -student or -admin, not both")
	case studentID > 0:
		token, err = auth.GenerateStudentToken(studentID, classID)
	case adminID > 0:
		token, err = auth.GenerateAdminToken(adminID, roleID, splitPermissions(permissions))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Println(token)
}

func splitPermissions(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
