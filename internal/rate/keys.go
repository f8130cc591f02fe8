package rate

func loginUserKey(identifier string) string {
	return "al:" + identifier
}

func loginIPKey(ip string) string {
	return "ali:" + ip
}

func refreshKey(sessionID string) string {
	return "ar:" + sessionID
}
