package cache

// Cache keys shared by the account services.
const (
	KeyEnabledUsers     = "enabled_users"
	KeyUsersForMentions = "users_for_mentions"
)

// RedirectAfterLoginKey stores the landing page captured during sign-up
// until the account's first login consumes it.
func RedirectAfterLoginKey(user string) string {
	return "redirect_after_login:" + user
}

// UserCacheKey holds per-user derived data such as permission snapshots.
func UserCacheKey(user string) string {
	return "user_cache:" + user
}
