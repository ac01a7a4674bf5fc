// Package socket implements the hub's WebSocket API client.
//
// A connection starts with an auth handshake (auth_required, auth,
// auth_ok). Afterwards every command carries an integer id and the hub
// answers with a result message bearing the same id. Event subscriptions
// deliver event messages that are routed to OnEvent handlers.
//
// # Usage
//
//	client := socket.New(socket.Options{URL: cfg.Hass.SocketURL(), Token: cfg.Hass.Token})
//	client.OnEvent(socket.EventStateChanged, func(e socket.Event) { ... })
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	go client.Run(ctx) // reconnects on drop
//
//	res, err := client.SendMessage(ctx, map[string]any{"type": "get_config"}, true)
//
// Setting Options.Mock skips the connection entirely. Sends then return
// (nil, nil) and IsConnected reports false.
package socket
