// Package admission fornece adapters HTTP (net/http) para o controle de
// admissão da API de tarefas: rate limit por cliente, bloqueio administrativo
// e throttling com fila por prioridade.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, admissão com fila/timeout) sem net/http
//   - infra: implementações concretas (algoritmos, store shardado, fila), detalhes de infraestrutura
//   - admission (este pacote): middlewares HTTP + wiring/extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF)
//  2. Chama a camada application para obter a decisão de rate limit
//  3. Se negado ou bloqueado, responde 429
//  4. Se permitido, submete ao throttler: despacho imediato, fila (espera) ou
//     rejeição — fila cheia responde 503, expirado na fila responde 504
//  5. Ao despachar, chama o próximo handler (ex: reverse proxy) e libera a
//     vaga no fim
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_ALGORITHM, RATE_RPM, THROTTLE_MAX e THROTTLE_TIMEOUT.
package admission
