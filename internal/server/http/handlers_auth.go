package http

import (
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	res, err := s.auth.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if res.RequiresTwoFA {
		writeJSON(w, http.StatusOK, map[string]any{
			"requires_2fa": true,
			"temp_token":   res.TempToken,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      res.Token,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
		"user":       toUserView(res.User),
	})
}

func (s *Server) handleVerifyLogin2FA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TempToken string `json:"temp_token"`
		Code      string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	res, err := s.auth.VerifyLogin2FA(r.Context(), req.TempToken, req.Code)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      res.Token,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
		"user":       toUserView(res.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.Get(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	u, err := s.auth.UpdateProfile(r.Context(), principalFrom(r.Context()).UserID, req.Name)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.auth.ChangePassword(r.Context(), principalFrom(r.Context()).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSetup2FA(w http.ResponseWriter, r *http.Request) {
	enr, err := s.auth.SetupTOTP(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret": enr.Secret,
		"url":    enr.URL,
	})
}

func (s *Server) handleVerifySetup2FA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	codes, err := s.auth.VerifySetupTOTP(r.Context(), principalFrom(r.Context()).UserID, req.Code)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (s *Server) handleDisable2FA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.auth.DisableTOTP(r.Context(), principalFrom(r.Context()).UserID, req.Code); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	codes, err := s.auth.RegenerateBackupCodes(r.Context(), principalFrom(r.Context()).UserID, req.Code)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (s *Server) handleStatus2FA(w http.ResponseWriter, r *http.Request) {
	st, err := s.auth.StatusTOTP(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":      st.Enabled,
		"pending":      st.Pending,
		"backup_codes": st.BackupCodes,
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	views := make([]userView, len(users))
	for i := range users {
		views[i] = toUserView(&users[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string     `json:"username"`
		Name     string     `json:"name"`
		Password string     `json:"password"`
		Role     model.Role `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	u, err := s.users.Create(r.Context(), req.Username, req.Name, req.Password, req.Role)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(u))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req struct {
		Name   string     `json:"name"`
		Role   model.Role `json:"role"`
		Active bool       `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	u, err := s.users.Update(r.Context(), id, req.Name, req.Role, req.Active)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.users.Delete(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// pathUUID parses a UUID path variable.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, errs.ErrInvalid
	}
	return id, nil
}
