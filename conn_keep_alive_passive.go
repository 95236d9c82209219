package wsflow

// replyPingWithPong answers every ping from the peer with a pong carrying the same payload.
// The pong goes through the outbound queue so it is serialised with regular writes.
func (w *WsConnection) replyPingWithPong(appData string) error {
	w.logger.Debugln("<= [PING]")
	w.send.Push(NewPongMessage([]byte(appData)))
	return nil
}
