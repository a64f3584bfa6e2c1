package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func doLogin(ctx context.Context, cfg cliConfig, email, password, tokenName string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "auth.login", map[string]any{
			"email":      email,
			"password":   password,
			"token_name": tokenName,
		}, out)
	}
	client := newAPIClient(cfg.Server, "")
	return client.request(ctx, http.MethodPost, "/api/auth/login", map[string]any{
		"email":      email,
		"password":   password,
		"mode":       "token",
		"token_name": tokenName,
	}, out)
}

func doWhoAmI(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "auth.whoami", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/auth/whoami", nil, out)
}

func doLogout(ctx context.Context, cfg cliConfig) error {
	if cfg.Transport == "uds" {
		return nil
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func doRecordsList(ctx context.Context, cfg cliConfig, q, status string, limit int, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.list", map[string]any{"token": cfg.Token, "q": q, "status": status, "limit": limit}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	params := url.Values{}
	if q != "" {
		params.Set("q", q)
	}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/api/records"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return client.request(ctx, http.MethodGet, path, nil, out)
}

func doRecordsCreate(ctx context.Context, cfg cliConfig, plate, driver, description string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.create", map[string]any{"token": cfg.Token, "vehicle_plate": plate, "driver_name": driver, "description": description}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/records", map[string]any{"vehicle_plate": plate, "driver_name": driver, "description": description}, out)
}

func doRecordsGet(ctx context.Context, cfg cliConfig, recordID uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.get", map[string]any{"token": cfg.Token, "record_id": recordID}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/records/"+uintToString(recordID), nil, out)
}

func doRecordsDelete(ctx context.Context, cfg cliConfig, recordIDs []uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "records.delete", map[string]any{"token": cfg.Token, "record_ids": recordIDs}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	if len(recordIDs) == 1 {
		return client.request(ctx, http.MethodDelete, "/api/records/"+uintToString(recordIDs[0]), nil, out)
	}
	return client.request(ctx, http.MethodPost, "/api/records/bulk-delete", map[string]any{"ids": recordIDs}, out)
}

func doStatusSet(ctx context.Context, cfg cliConfig, recordID uint, newStatus, operator, notes string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "status.set", map[string]any{"token": cfg.Token, "record_id": recordID, "new_status": newStatus, "operator_name": operator, "notes": notes}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/records/"+uintToString(recordID)+"/transitions", map[string]any{"new_status": newStatus, "operator_name": operator, "notes": notes}, out)
}

func doTimeline(ctx context.Context, cfg cliConfig, recordID uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "timeline.get", map[string]any{"token": cfg.Token, "record_id": recordID}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/records/"+uintToString(recordID)+"/timeline", nil, out)
}

func doAnalysis(ctx context.Context, cfg cliConfig, recordID uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "analysis.get", map[string]any{"token": cfg.Token, "record_id": recordID}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/records/"+uintToString(recordID)+"/analysis", nil, out)
}

func doReport(ctx context.Context, cfg cliConfig, start, end string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "report.generate", map[string]any{"token": cfg.Token, "start": start, "end": end}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	params := url.Values{}
	params.Set("start", start)
	params.Set("end", end)
	return client.request(ctx, http.MethodGet, "/api/reports/managerial?"+params.Encode(), nil, out)
}

func doOccurrenceAdd(ctx context.Context, cfg cliConfig, recordID uint, operator, description string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "occurrences.add", map[string]any{"token": cfg.Token, "record_id": recordID, "operator_name": operator, "description": description}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/records/"+uintToString(recordID)+"/occurrences", map[string]any{"operator_name": operator, "description": description}, out)
}

func doOccurrencesList(ctx context.Context, cfg cliConfig, recordID uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "occurrences.list", map[string]any{"token": cfg.Token, "record_id": recordID}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/records/"+uintToString(recordID)+"/occurrences", nil, out)
}

func doStatusesList(ctx context.Context, cfg cliConfig, out any) error {
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/statuses", nil, out)
}

func doUsersList(ctx context.Context, cfg cliConfig, q string, out any) error {
	client := newAPIClient(cfg.Server, cfg.Token)
	path := "/api/access/users"
	if q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	return client.request(ctx, http.MethodGet, path, nil, out)
}

func doUsersCreate(ctx context.Context, cfg cliConfig, email, password string, roleID uint, out any) error {
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/access/users", map[string]any{"email": email, "password": password, "role_id": roleID}, out)
}

func doRolesList(ctx context.Context, cfg cliConfig, out any) error {
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/access/roles", nil, out)
}

func doAssignRole(ctx context.Context, cfg cliConfig, userID, roleID uint, out any) error {
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/access/assign-role", map[string]any{"user_id": userID, "role_id": roleID}, out)
}

func doAuditList(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "audit.list", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/audit/logs", nil, out)
}

func uintToString(v uint) string {
	return fmt.Sprintf("%d", v)
}
