// File: handler.go
package main

import (
	"encoding/json"
	"log"
	"net/http"

	"rotateCaptcha/captcha"
)

// StartResponse is returned by /api/challenge/start
type StartResponse struct {
	UUID  string `json:"uuid"`
	Image string `json:"image"` // data-URI sprite, 直接嵌入 <img>
}

// VerifyRequest is the JSON body for /api/challenge/verify
type VerifyRequest struct {
	UUID      string `json:"uuid"`
	Selection int    `json:"selection"` // 1-based，与图片上的数字标签一致
}

// VerifyResponse is returned by /api/challenge/verify
type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type server struct {
	mgr *captcha.Manager
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	ch, err := s.mgr.GenerateChallenge()
	if err != nil {
		http.Error(w, "failed to generate challenge: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rsp := StartResponse{
		UUID:  ch.ID,
		Image: ch.DataURI(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rsp)
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	// 标签是 1-based，库内索引是 0-based
	ok, err := s.mgr.VerifyChallenge(req.UUID, req.Selection-1)
	if err != nil {
		// 所有失败种类对用户只呈现"验证失败"，细节仅记日志
		log.Printf("challenge %.12s... rejected: %v", req.UUID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		json.NewEncoder(w).Encode(VerifyResponse{false, "验证失败"})
		return
	}
	json.NewEncoder(w).Encode(VerifyResponse{true, "验证通过"})
}
