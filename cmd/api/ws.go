package main

import "net/http"

// handleWebsocket upgrades the connection and hands it to the hub. Auth rides
// on the token query parameter since browsers cannot set headers on upgrades.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	userID, _, err := s.authService.VerifyToken(token)
	if err != nil {
		writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	s.hub.Register(r.Context(), userID, conn)
}
