// Package audit records security-relevant events about API credentials:
//   - credential generation and revocation
//   - authentication success and failure, with the internal failure reason
//   - rate limit rejections
//
// Events are written one per line as JSON or text:
//
//	logger, err := audit.NewLogger(&audit.Config{
//	    Enabled: true,
//	    Output:  "/var/log/keyward/audit.log",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Close()
//
//	logger.LogEvent(ctx, audit.KeyRevokedEvent(id, audit.OutcomeSuccess))
//
// Events never carry a raw credential.
package audit
