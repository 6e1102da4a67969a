// Package prometheus renders engine metrics in Prometheus text
// exposition format without pulling in the client library; the
// counter set is small and fixed.
package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	authcore "github.com/auralis-app/authcore"
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   authcore.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Successful logins."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Rejected credential attempts."},
	{authcore.MetricLoginLocked, "authcore_login_locked_total", "Logins rejected by the lockout window."},
	{authcore.MetricTwoFactorRequired, "authcore_two_factor_required_total", "Logins held for a second factor."},
	{authcore.MetricTwoFactorSuccess, "authcore_two_factor_success_total", "Accepted second-factor codes."},
	{authcore.MetricTwoFactorFailure, "authcore_two_factor_failure_total", "Rejected second-factor codes."},
	{authcore.MetricBackupCodeUsed, "authcore_backup_code_used_total", "Backup codes consumed."},
	{authcore.MetricBackupCodeFailed, "authcore_backup_code_failed_total", "Rejected backup codes."},
	{authcore.MetricBackupCodesRegenerated, "authcore_backup_codes_regenerated_total", "Backup code set regenerations."},
	{authcore.MetricSessionCreated, "authcore_session_created_total", "Sessions issued."},
	{authcore.MetricSessionExpired, "authcore_session_expired_total", "Sessions removed after expiry."},
	{authcore.MetricLogout, "authcore_logout_total", "Explicit logouts."},
	{authcore.MetricGuestLogin, "authcore_guest_login_total", "Guest sessions opened."},
	{authcore.MetricUserCreated, "authcore_user_created_total", "Accounts created."},
	{authcore.MetricUserUpdated, "authcore_user_updated_total", "Account updates."},
	{authcore.MetricUserDeactivated, "authcore_user_deactivated_total", "Accounts deactivated."},
	{authcore.MetricUserDeleted, "authcore_user_deleted_total", "Accounts hard-deleted."},
	{authcore.MetricPasswordChangeSuccess, "authcore_password_change_success_total", "Password changes."},
	{authcore.MetricPasswordChangeFailure, "authcore_password_change_failure_total", "Rejected password changes."},
	{authcore.MetricPermissionDenied, "authcore_permission_denied_total", "Denied permission checks."},
	{authcore.MetricRemoteSuccess, "authcore_remote_success_total", "Operations served by the remote identity service."},
	{authcore.MetricRemoteFallback, "authcore_remote_fallback_total", "Operations rerouted to the local backend."},
}

var histogramBounds = [8]string{
	"0.0001", "0.00025", "0.0005", "0.001", "0.005", "0.025", "0.1", "+Inf",
}

// Exporter renders a metrics source as Prometheus text.
type Exporter struct {
	source metricsSource
}

// New creates an exporter reading from the given engine.
func New(engine *authcore.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewFromSource creates an exporter from a custom source.
func NewFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the rendered metrics over HTTP.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render writes every counter, the validation latency histogram and
// the audit drop counter in exposition format.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}
	snapshot := e.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(8192)

	for _, def := range counterDefs {
		writeCounter(&b, def.name, def.help, snapshot.Counters[def.id])
	}

	if buckets, ok := snapshot.Histograms[authcore.MetricValidateLatency]; ok {
		writeHistogram(&b, "authcore_validate_session_seconds",
			"Session validation latency.", cumulative(buckets))
	}

	writeCounter(&b, "authcore_audit_dropped_total",
		"Audit events dropped under backpressure.", e.source.AuditDropped())
	return b.String()
}

func cumulative(buckets []uint64) [8]uint64 {
	var out [8]uint64
	var sum uint64
	for i := 0; i < len(out) && i < len(buckets); i++ {
		sum += buckets[i]
		out[i] = sum
	}
	for i := len(buckets); i < len(out); i++ {
		out[i] = sum
	}
	return out
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(help)
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(help)
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i, le := range histogramBounds {
		b.WriteString(name)
		b.WriteString(`_bucket{le="`)
		b.WriteString(le)
		b.WriteString(`"} `)
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}
